package routes

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/internal/storage"
	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/graph"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/labstack/echo/v4"
)

// ImagePrefix is the object key prefix for diagrams rendered for the web UI.
const ImagePrefix = "images"

type resultsPage struct {
	SiteID      string
	ImageURL    string
	Collections int
	Edges       int
	Diagnostics []common.Diagnostic
}

func renderForSession(c echo.Context, s siteSession) ([]byte, *graph.BuildResult, string, string, error) {
	app := c.(*middleware.AppContext).App
	renderer, err := app.NewRenderer("")
	if err != nil {
		return nil, nil, "", "", err
	}
	creds := metadata.Credentials{Token: s.Token, SiteID: s.SiteID}
	data, result, err := app.GraphClient.RenderGraph(c.Request().Context(), app.Source, renderer, creds)
	if err != nil {
		return nil, result, "", "", err
	}
	return data, result, renderer.ContentType(), renderer.Extension(), nil
}

func renderFailure(c echo.Context, s siteSession, err error) error {
	if errors.Is(err, schema.ErrSourceUnavailable) {
		return flashRedirect(c, msgNoCollections)
	}
	logger.Error("[Server] Failed to render schema", "site", s.SiteID, "err", err)
	return flashRedirect(c, "Failed to render schema: "+err.Error())
}

// GetResultsHandler renders the diagram, stores it and shows it.
func GetResultsHandler(c echo.Context) error {
	s, ok := loadSiteSession(c)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	data, result, contentType, ext, err := renderForSession(c, s)
	if err != nil {
		return renderFailure(c, s, err)
	}

	app := c.(*middleware.AppContext).App
	filename := fmt.Sprintf("%s.%s", s.RunID, ext)
	if err := app.Store.PutImage(c.Request().Context(), storage.ImageKey(ImagePrefix, s.RunID, ext), contentType, data); err != nil {
		logger.Error("[Server] Failed to store diagram", "site", s.SiteID, "err", err)
		return flashRedirect(c, "Failed to store diagram")
	}

	return c.Render(http.StatusOK, "results", resultsPage{
		SiteID:      s.SiteID,
		ImageURL:    "/download/" + filename,
		Collections: len(result.Model.Nodes),
		Edges:       len(result.Model.Edges),
		Diagnostics: result.Diagnostics,
	})
}

// GetSchemaHandler returns the rendered diagram bytes directly.
func GetSchemaHandler(c echo.Context) error {
	s, ok := loadSiteSession(c)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	data, _, contentType, _, err := renderForSession(c, s)
	if err != nil {
		return renderFailure(c, s, err)
	}
	return c.Blob(http.StatusOK, contentType, data)
}

// GetDownloadHandler streams a previously stored diagram.
func GetDownloadHandler(c echo.Context) error {
	filename := c.Param("filename")
	if filename == "" || path.Base(filename) != filename || strings.HasPrefix(filename, ".") {
		return flashRedirect(c, "Invalid file name")
	}

	app := c.(*middleware.AppContext).App
	data, contentType, err := app.Store.GetImage(c.Request().Context(), ImagePrefix+"/"+filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return flashRedirect(c, "File not found")
		}
		logger.Error("[Server] Failed to load diagram", "file", filename, "err", err)
		return flashRedirect(c, "Failed to load file")
	}
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", filename))
	return c.Blob(http.StatusOK, contentType, data)
}
