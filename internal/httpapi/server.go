// Package httpapi exposes a read-only introspection surface over a
// BatchManager: batch listing, lookup, and progress, guarded by a
// bearer JWT and instrumented the way the rest of the orchestrator is.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/cache"
	"github.com/gongahkia/batchqueue/internal/httpapi/handlers"
	"github.com/gongahkia/batchqueue/internal/httpapi/middleware"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/storage"
)

// Server wraps the fiber app serving the introspection API.
type Server struct {
	app           *fiber.App
	storage       storage.Storage
	mgr           *batchmgr.BatchManager
	logger        *observability.Logger
	metrics       *observability.Metrics
	auth          *middleware.AuthConfig
	progressCache cache.Cache
	cacheTTL      time.Duration
}

// NewServer builds a Server bound to mgr and store, authenticating
// every /api/v1 route with auth. progressCache may be nil to disable
// progress-read caching.
func NewServer(store storage.Storage, mgr *batchmgr.BatchManager, logger *observability.Logger, metrics *observability.Metrics, auth *middleware.AuthConfig, progressCache cache.Cache, cacheTTL time.Duration) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "BatchQueue API",
		ServerHeader: "batchqueue",
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	return &Server{
		app:           app,
		storage:       store,
		mgr:           mgr,
		logger:        logger,
		metrics:       metrics,
		auth:          auth,
		progressCache: progressCache,
		cacheTTL:      cacheTTL,
	}
}

// SetupRoutes mounts every route this surface serves.
func (s *Server) SetupRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.logger))
	s.app.Use(middleware.CORS())
	s.app.Use(middleware.Recovery(s.logger))
	s.app.Use(middleware.Metrics(s.metrics))

	s.app.Get("/health", handlers.HealthCheck())
	s.app.Get("/ready", handlers.ReadinessCheck(s.storage))
	s.app.Get("/metrics", handlers.MetricsHandler(s.metrics))

	batchHandler := handlers.NewBatchHandler(s.mgr, s.logger, s.progressCache, s.cacheTTL)

	v1 := s.app.Group("/api/v1", middleware.JWTAuth(s.auth, s.logger))
	batches := v1.Group("/batches")
	batches.Get("/", batchHandler.ListBatches)
	batches.Get("/:id", batchHandler.GetBatch)
	batches.Get("/:id/progress", batchHandler.GetProgress)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "resource not found",
			"path":  c.Path(),
		})
	})
}

// GetApp returns the underlying fiber app, useful for tests.
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// Start begins serving on address.
func (s *Server) Start(address string) error {
	return s.app.Listen(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
