package routes

import (
	"encoding/json"
	"net/http"

	"github.com/OFFIS-RIT/schemagraph/internal/queue"
	"github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/render/graphviz"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var renderFormats = []graphviz.Format{
	graphviz.FormatPNG,
	graphviz.FormatSVG,
	graphviz.FormatPDF,
	graphviz.FormatDOT,
}

// CreateRenderHandler queues an asynchronous render job.
func CreateRenderHandler(c echo.Context) error {
	type createRenderBody struct {
		Token  string `json:"token" validate:"required"`
		SiteID string `json:"site_id" validate:"required"`
		Format string `json:"format"`
	}

	type createRenderResponse struct {
		Message string `json:"message,omitempty"`
		ID      string `json:"id,omitempty"`
	}

	data := new(createRenderBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRenderResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createRenderResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	if _, err := app.NewRenderer(data.Format); err != nil {
		return c.JSON(http.StatusBadRequest, createRenderResponse{
			Message: err.Error(),
		})
	}
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, createRenderResponse{
			Message: "Render queue unavailable",
		})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createRenderResponse{
			Message: "Internal server error",
		})
	}

	msg, err := json.Marshal(queue.RenderJobMsg{
		ID:     id,
		SiteID: data.SiteID,
		Token:  data.Token,
		Format: data.Format,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, createRenderResponse{
			Message: "Internal server error",
		})
	}

	if err := app.Queue.Publish(queue.RenderQueue, msg, nil); err != nil {
		logger.Error("[Server] Failed to publish render job", "id", id, "err", err)
		return c.JSON(http.StatusInternalServerError, createRenderResponse{
			Message: "Internal server error",
		})
	}

	logger.Info("[Server] Queued render job", "id", id, "site", data.SiteID)
	return c.JSON(http.StatusAccepted, createRenderResponse{ID: id})
}

// GetRenderHandler reports whether a render job has finished.
func GetRenderHandler(c echo.Context) error {
	type renderStatusResponse struct {
		Status string `json:"status"`
		URL    string `json:"url,omitempty"`
	}

	id := c.Param("id")
	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	for _, f := range renderFormats {
		key := queue.RenderKey(id, string(f))
		exists, err := app.Store.Exists(ctx, key)
		if err != nil {
			logger.Error("[Server] Failed to check render", "id", id, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}
		if !exists {
			continue
		}

		url, err := app.Store.DownloadLink(ctx, key)
		if err != nil {
			logger.Error("[Server] Failed to sign render link", "id", id, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}
		return c.JSON(http.StatusOK, renderStatusResponse{Status: "done", URL: url})
	}

	return c.JSON(http.StatusNotFound, renderStatusResponse{Status: "pending"})
}
