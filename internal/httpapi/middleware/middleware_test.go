package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

var testLogger = observability.NewLogger("error", "json")

func TestJWTAuth_RejectsMissingHeader(t *testing.T) {
	app := fiber.New()
	app.Get("/x", JWTAuth(&AuthConfig{JWTSecret: "s"}, testLogger), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTAuth_AcceptsValidToken(t *testing.T) {
	cfg := &AuthConfig{JWTSecret: "s", JWTExpiration: time.Hour}
	token, err := GenerateJWT("client-1", []string{"admin"}, cfg)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/x", JWTAuth(cfg, testLogger), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("client_id").(string))
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJWTAuth_RejectsTokenSignedWithDifferentSecret(t *testing.T) {
	token, err := GenerateJWT("client-1", nil, &AuthConfig{JWTSecret: "other", JWTExpiration: time.Hour})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/x", JWTAuth(&AuthConfig{JWTSecret: "s"}, testLogger), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTAuth_SkipperBypassesValidation(t *testing.T) {
	cfg := &AuthConfig{JWTSecret: "s", Skipper: func(c *fiber.Ctx) bool { return true }}
	app := fiber.New()
	app.Get("/x", JWTAuth(cfg, testLogger), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoles_RejectsMissingRole(t *testing.T) {
	app := fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals("roles", []string{"viewer"})
		return c.Next()
	}, RequireRoles("admin"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireRoles_AllowsMatchingRole(t *testing.T) {
	app := fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals("roles", []string{"admin"})
		return c.Next()
	}, RequireRoles("admin"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimit_BlocksAfterBurstExhausted(t *testing.T) {
	app := fiber.New()
	app.Get("/x", RateLimit(&RateLimitConfig{RPS: 1, Burst: 1}, testLogger), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/x", nil)
	first, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, first.StatusCode)

	second, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, second.StatusCode)
}

func TestInMemoryRateLimitStorage_ResetAllowsFreshBurst(t *testing.T) {
	s := NewInMemoryRateLimitStorage(1, 1)
	key := "tenant-1"

	assert.True(t, s.Get(key).Allow())
	assert.False(t, s.Get(key).Allow())

	s.Reset(key)
	assert.True(t, s.Get(key).Allow())
}

func TestErrorHandler_MapsBatchNotFoundTo404(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger)})
	app.Get("/x", func(c *fiber.Ctx) error {
		return errors.BatchNotFoundErr("missing")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestErrorHandler_MapsEmptyBatchTo400(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger)})
	app.Get("/x", func(c *fiber.Ctx) error {
		return errors.EmptyBatchErr("no jobs")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestErrorHandler_UnknownErrorDefaultsTo500(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger)})
	app.Get("/x", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
