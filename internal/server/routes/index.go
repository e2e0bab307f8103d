package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const msgNoCollections = "No SharePoint lists found or authentication failed"

type indexPage struct {
	Flashes []string
}

// GetIndexHandler shows the token / site id form.
func GetIndexHandler(c echo.Context) error {
	return c.Render(http.StatusOK, "index", indexPage{Flashes: popFlashes(c)})
}

// PostIndexHandler checks that the site has readable collections and
// remembers the credentials for the results page.
func PostIndexHandler(c echo.Context) error {
	type schemaForm struct {
		Token  string `form:"token" validate:"required"`
		SiteID string `form:"site_id" validate:"required"`
	}

	data := new(schemaForm)
	if err := c.Bind(data); err != nil {
		return flashRedirect(c, "Invalid form submission")
	}
	if err := c.Validate(data); err != nil {
		return flashRedirect(c, "Token and site ID are required")
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()
	creds := metadata.Credentials{Token: data.Token, SiteID: data.SiteID}

	if _, err := app.GraphClient.ListCollections(ctx, app.Source, creds); err != nil {
		if errors.Is(err, schema.ErrSourceUnavailable) {
			return flashRedirect(c, msgNoCollections)
		}
		logger.Error("[Server] Failed to list collections", "site", data.SiteID, "err", err)
		return flashRedirect(c, "Failed to fetch schema: "+err.Error())
	}

	runID, err := gonanoid.New()
	if err != nil {
		return c.String(http.StatusInternalServerError, "Internal server error")
	}

	sess, err := getSession(c)
	if err != nil {
		return c.String(http.StatusInternalServerError, "Internal server error")
	}
	sess.Values[sessionToken] = data.Token
	sess.Values[sessionSiteID] = data.SiteID
	sess.Values[sessionRunID] = runID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		logger.Error("[Server] Failed to save session", "err", err)
		return c.String(http.StatusInternalServerError, "Internal server error")
	}

	return c.Redirect(http.StatusSeeOther, "/results")
}
