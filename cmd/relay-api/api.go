// Package main provides the relay API server.
package main

import (
	"log/slog"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/services"
	"github.com/dukex/relay/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger   *slog.Logger
	stack    *cmd.Stack
	gatherer prometheus.Gatherer
	dispatch bool
	validate *validator.Validate
}

// NewAPI builds the server. Without dispatch executions run inside the request.
func NewAPI(logger *slog.Logger, stack *cmd.Stack, gatherer prometheus.Gatherer, dispatch bool) *API {
	return &API{
		logger:   logger,
		stack:    stack,
		gatherer: gatherer,
		dispatch: dispatch,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var dispatcher *services.Dispatcher
	if a.dispatch {
		dispatcher = a.stack.Dispatcher
	}

	handlers := web.NewAPIHandlers(a.stack.Scenarios, a.stack.Executions, dispatcher, a.validate, a.stack.Registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Relay API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	handlers.Register(app)

	return app
}
