package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/auth"
	"github.com/spec-kit/lifecycle-service/internal/config"
)

// NewServer builds the fiber app with all portal routes registered.
func NewServer(cfg *config.Config, handlers *Handlers, tokens *auth.TokenManager, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  cfg.App.RequestTimeout(),
		WriteTimeout: cfg.App.RequestTimeout(),
		ErrorHandler: ErrorHandler(logger),
	})

	app.Use(RequestLogger(logger))

	app.Get("/health", handlers.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/auth/login", handlers.Login)

	protected := v1.Group("", auth.Middleware(tokens))
	protected.Post("/runs/batch", handlers.TriggerBatch)
	protected.Post("/runs/ticket/:id", handlers.TriggerTicket)
	protected.Get("/runs", handlers.ListRuns)
	protected.Get("/metrics", handlers.Metrics)

	return app
}
