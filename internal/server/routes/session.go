package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

const (
	sessionName = "schemagraph"

	sessionToken  = "token"
	sessionSiteID = "site_id"
	sessionRunID  = "run_id"
)

type siteSession struct {
	Token  string
	SiteID string
	RunID  string
}

func getSession(c echo.Context) (*sessions.Session, error) {
	app := c.(*middleware.AppContext).App
	sess, err := app.Sessions.Get(c.Request(), sessionName)
	if sess == nil {
		return nil, err
	}
	// An undecodable cookie yields a fresh session.
	if err != nil {
		logger.Debug("[Server] Discarding invalid session cookie", "err", err)
	}
	return sess, nil
}

// loadSiteSession returns the memoized credentials, or false if the user has
// not submitted the form yet.
func loadSiteSession(c echo.Context) (siteSession, bool) {
	sess, err := getSession(c)
	if err != nil {
		return siteSession{}, false
	}
	token, _ := sess.Values[sessionToken].(string)
	siteID, _ := sess.Values[sessionSiteID].(string)
	runID, _ := sess.Values[sessionRunID].(string)
	if token == "" || siteID == "" || runID == "" {
		return siteSession{}, false
	}
	return siteSession{Token: token, SiteID: siteID, RunID: runID}, true
}

// flashRedirect stores msg as a flash message and redirects to the form.
func flashRedirect(c echo.Context, msg string) error {
	sess, err := getSession(c)
	if err == nil {
		sess.AddFlash(msg)
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			logger.Error("[Server] Failed to save session", "err", err)
		}
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func popFlashes(c echo.Context) []string {
	sess, err := getSession(c)
	if err != nil {
		return nil
	}
	var out []string
	for _, f := range sess.Flashes() {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			logger.Error("[Server] Failed to save session", "err", err)
		}
	}
	return out
}
