package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/storage"
)

var healthMetrics = observability.NewMetrics()

type failingHealthStore struct {
	storage.Storage
}

func (failingHealthStore) HealthCheck(ctx context.Context) error {
	return assert.AnError
}

func TestHealthCheck_AlwaysOK(t *testing.T) {
	app := fiber.New()
	app.Get("/health", HealthCheck())

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReadinessCheck_HealthyStorageReportsReady(t *testing.T) {
	app := fiber.New()
	app.Get("/ready", ReadinessCheck(storage.NewMemoryStorage()))

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReadinessCheck_UnhealthyStorageReports503(t *testing.T) {
	app := fiber.New()
	app.Get("/ready", ReadinessCheck(failingHealthStore{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", MetricsHandler(healthMetrics))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
