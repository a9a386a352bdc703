package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountant/internal/batch"
	"github.com/congo-pay/accountant/internal/config"
	"github.com/congo-pay/accountant/internal/infra"
	"github.com/congo-pay/accountant/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, conns *infra.Connections, logger *slog.Logger) *Server {
	if conns == nil {
		conns = &infra.Connections{}
	}
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		BodyLimit:             cfg.MaxBatchBytes,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	runner := batch.NewRunner(batch.Options{
		Backend:  cfg.LedgerBackend,
		Backends: conns.Backends(cfg.LedgerTTL),
		Workers:  cfg.Workers,
		Logger:   logger,
	})
	routes.Setup(app, routes.Deps{Cfg: cfg, Conns: conns, Runner: runner, Logger: logger})

	return &Server{app: app, cfg: cfg}
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders errors as JSON {"error": message}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
