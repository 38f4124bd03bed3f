package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/storage"
)

// HealthCheck handles GET /health.
func HealthCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "batchqueue-api",
		})
	}
}

// ReadinessCheck handles GET /ready, reporting the storage backend's
// reachability.
func ReadinessCheck(store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.HealthCheck(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"error":  "storage unavailable",
			})
		}
		return c.JSON(fiber.Map{
			"status":  "ready",
			"service": "batchqueue-api",
		})
	}
}

// MetricsHandler handles GET /metrics.
func MetricsHandler(metrics *observability.Metrics) fiber.Handler {
	return adaptor.HTTPHandler(metrics.Handler())
}
