package cmd

import (
	"context"

	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
)

// HealthChecker reports the state of a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (string, bool)
}

// MountOps adds liveness, readiness and metrics endpoints to app. Readiness
// follows the health of checker.
func MountOps(app *fiber.App, m *metrics.Metrics, checker HealthChecker) {
	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := checker.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
}
