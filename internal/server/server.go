package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/schemagraph/internal/config"
	"github.com/OFFIS-RIT/schemagraph/internal/queue"
	mid "github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/internal/server/templates"
	"github.com/OFFIS-RIT/schemagraph/internal/storage"
	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance serving app.
func New(app *mid.App) (*echo.Echo, error) {
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Renderer = renderer

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)
	return e, nil
}

// NewSessionStore creates the cookie store for the web UI. Without
// SESSION_SECRET a random key is used and sessions do not survive restarts.
func NewSessionStore() sessions.Store {
	hashKey := []byte(util.GetEnv("SESSION_SECRET"))
	if len(hashKey) == 0 {
		logger.Warn("SESSION_SECRET not set, using a random session key")
		hashKey = securecookie.GenerateRandomKey(32)
	}
	keyPairs := [][]byte{hashKey}
	if blockKey := util.GetEnv("SESSION_ENCRYPTION_KEY"); blockKey != "" {
		keyPairs = append(keyPairs, []byte(blockKey))
	}

	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(util.GetEnvNumeric("SESSION_MAX_AGE", 3600)),
		HttpOnly: true,
		Secure:   util.GetEnvBool("SESSION_SECURE", false),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load("", nil)
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}
	graphClient, err := cfg.NewGraphClient()
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}

	store, err := storage.NewS3Store(ctx, storage.S3ParamsFromEnv())
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}

	app := &mid.App{
		GraphClient: graphClient,
		Source:      cfg.NewSource(),
		NewRenderer: cfg.RendererFactory(),
		Store:       store,
		Sessions:    NewSessionStore(),
		APIKey:      util.GetEnv("API_KEY"),
	}

	if util.GetEnv("RABBITMQ_HOST") != "" {
		que := queue.Init()
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.RenderQueue}); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		app.Queue = &queue.ChannelPublisher{Ch: ch}
	} else {
		logger.Warn("RABBITMQ_HOST not set, render API disabled")
	}

	e, err := New(app)
	if err != nil {
		logger.Fatal("Failed to create server", "err", err)
	}

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
