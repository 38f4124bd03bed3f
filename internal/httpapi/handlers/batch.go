package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/cache"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/storage"
)

// BatchHandler exposes a read-only view of batches over HTTP: the
// introspection surface never accepts job definitions or mutates
// anything, so it only needs the manager's lookup methods. Progress
// lookups are the hottest read path (pollers hit them repeatedly
// while a batch runs) so they go through progressCache first.
type BatchHandler struct {
	mgr           *batchmgr.BatchManager
	logger        *observability.Logger
	progressCache cache.Cache
	cacheTTL      time.Duration
}

// NewBatchHandler builds a BatchHandler bound to mgr. progressCache
// may be nil, in which case GetProgress always reads through to mgr.
func NewBatchHandler(mgr *batchmgr.BatchManager, logger *observability.Logger, progressCache cache.Cache, cacheTTL time.Duration) *BatchHandler {
	return &BatchHandler{mgr: mgr, logger: logger, progressCache: progressCache, cacheTTL: cacheTTL}
}

// ListBatches handles GET /api/v1/batches?type=&status=&limit=&offset=
func (h *BatchHandler) ListBatches(c *fiber.Ctx) error {
	filter := storage.BatchFilter{
		Type:   batchjob.BatchType(c.Query("type")),
		Status: batchjob.BatchStatus(c.Query("status")),
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	batches, err := h.mgr.GetBatches(c.Context(), filter, limit, offset)
	if err != nil {
		return err
	}

	total, err := h.mgr.CountBatches(c.Context(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"batches": batches,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetBatch handles GET /api/v1/batches/:id
func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	b, err := h.mgr.GetBatch(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(b)
}

// GetProgress handles GET /api/v1/batches/:id/progress
func (h *BatchHandler) GetProgress(c *fiber.Ctx) error {
	id := c.Params("id")

	if h.progressCache != nil {
		key := cache.CacheKey("progress", id)
		if cached, err := h.progressCache.Get(c.Context(), key); err == nil && cached != nil {
			return c.JSON(cached)
		}
	}

	p, err := h.mgr.GetProgress(c.Context(), id)
	if err != nil {
		return err
	}

	if h.progressCache != nil {
		key := cache.CacheKey("progress", id)
		if err := h.progressCache.Set(c.Context(), key, p, h.cacheTTL); err != nil {
			h.logger.WithField("error", err).Warn("failed to cache batch progress")
		}
	}

	return c.JSON(p)
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
