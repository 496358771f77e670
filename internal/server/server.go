// Package server assembles the echo instance: middleware, error rendering
// and routes.
package server

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/ytakahashi/todo-api/internal/config"
	"github.com/ytakahashi/todo-api/internal/handlers"
	"github.com/ytakahashi/todo-api/internal/middleware"
	"github.com/ytakahashi/todo-api/internal/services"
)

type Options struct {
	Repo    services.TodoRepository
	Logger  *log.Logger
	Limiter config.Limiter
	// Webhook is mounted on POST /webhook when non-nil.
	Webhook *handlers.WebhookHandler
}

// New builds the HTTP server. ctx bounds background work such as the rate
// limiter janitor.
func New(ctx context.Context, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(opts.Logger)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(opts.Logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.Gzip())

	if opts.Limiter.Enabled() {
		store := middleware.NewLimiterStore(opts.Limiter.RPS, opts.Limiter.Burst)
		store.StartJanitor(ctx)
		e.Use(middleware.RateLimit(store))
	}

	handlers.NewTodoHandler(opts.Repo, opts.Logger).Register(e)
	if opts.Webhook != nil {
		e.POST("/webhook", opts.Webhook.HandleWebhook)
	}
	return e
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			)
			return nil
		},
	})
}
