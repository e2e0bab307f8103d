package middleware

import (
	"github.com/OFFIS-RIT/schemagraph/internal/queue"
	"github.com/OFFIS-RIT/schemagraph/internal/storage"
	"github.com/OFFIS-RIT/schemagraph/pkg/graph"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
)

// App holds the shared dependencies of every request.
type App struct {
	GraphClient *graph.GraphClient
	Source      metadata.SchemaSource
	NewRenderer queue.RendererFactory
	Store       storage.ImageStore
	// Queue is nil when the server runs without RabbitMQ; the render API
	// then answers 503.
	Queue    queue.Publisher
	Sessions sessions.Store
	APIKey   string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
