package server

import (
	"github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	// Web UI
	e.GET("/", routes.GetIndexHandler)
	e.POST("/", routes.PostIndexHandler)
	e.GET("/results", routes.GetResultsHandler)
	e.GET("/schema", routes.GetSchemaHandler)
	e.GET("/download/:filename", routes.GetDownloadHandler)

	// Asynchronous render API
	apiRoutes := e.Group("/api", middleware.APIKeyMiddleware)
	apiRoutes.POST("/renders", routes.CreateRenderHandler)
	apiRoutes.GET("/renders/:id", routes.GetRenderHandler)
}
