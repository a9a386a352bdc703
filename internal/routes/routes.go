package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/congo-pay/accountant/internal/batch"
	"github.com/congo-pay/accountant/internal/config"
	"github.com/congo-pay/accountant/internal/infra"
	"github.com/congo-pay/accountant/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Conns  *infra.Connections
	Runner *batch.Runner
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	if d.Conns == nil {
		d.Conns = &infra.Connections{}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1", middleware.BearerToken(d.Cfg.APITokenHash))
	if d.Conns.Cache != nil {
		api.Use(middleware.RateLimit(d.Conns.Cache, d.Cfg.BatchRateLimit))
		api.Use(middleware.Idempotency(d.Conns.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterBatchRoutes(api, d.Runner)
}
