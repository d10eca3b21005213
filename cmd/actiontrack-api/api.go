// Package main provides the actiontrack API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/actiontrack/pkg/cmd"
	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/dukex/actiontrack/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger        *slog.Logger
	actionService *services.Action
	schemaImport  *useraction.DBSchemaImport
	metrics       *metrics.Metrics
	validate      *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	actionService *services.Action,
	schemaImport *useraction.DBSchemaImport,
	m *metrics.Metrics,
) *API {
	return &API{
		logger:        logger,
		actionService: actionService,
		schemaImport:  schemaImport,
		metrics:       m,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.actionService, a.schemaImport, a.validate, a.logger)

	app := fiber.New(fiber.Config{
		BodyLimit: web.MaxSchemaSize + 64<<10,
	})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	cmd.MountOps(app, a.metrics, a.actionService)

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("actiontrack API")
	})

	app.Post("/resources/:resourceId/db-schema-imports", handlers.CreateDBSchemaImport)
	app.Get("/actions/:actionId", handlers.GetDBSchemaImport)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
