package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/cache"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/httpapi/middleware"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
)

func newTestApp(t *testing.T, progressCache cache.Cache) (*fiber.App, *batchmgr.BatchManager) {
	t.Helper()
	store := storage.NewMemoryStorage()
	router := transport.NewRouter(func(name string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
	d := dispatch.New(router, 0, 0)
	qcfg := queueconfig.New(&config.BatchConfig{})
	mgr := batchmgr.New(store, d, qcfg, registry.New())
	logger := observability.NewLogger("error", "json")

	h := NewBatchHandler(mgr, logger, progressCache, time.Minute)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	app.Get("/batches", h.ListBatches)
	app.Get("/batches/:id", h.GetBatch)
	app.Get("/batches/:id/progress", h.GetProgress)
	return app, mgr
}

func doGet(t *testing.T, app *fiber.App, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out))
	}
	return resp.StatusCode, out
}

func TestGetBatch_ReturnsPersistedBatch(t *testing.T) {
	app, mgr := newTestApp(t, nil)
	id, err := mgr.Batch("send_email").Dispatch(context.Background())
	require.NoError(t, err)

	status, body := doGet(t, app, "/batches/"+id)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id, body["id"])
}

func TestGetBatch_UnknownIDReturnsError(t *testing.T) {
	app, _ := newTestApp(t, nil)
	status, _ := doGet(t, app, "/batches/does-not-exist")
	assert.NotEqual(t, fiber.StatusOK, status)
}

func TestListBatches_ReturnsTotalAndEntries(t *testing.T) {
	app, mgr := newTestApp(t, nil)
	ctx := context.Background()
	_, err := mgr.Batch("a").Dispatch(ctx)
	require.NoError(t, err)
	_, err = mgr.Batch("b").Dispatch(ctx)
	require.NoError(t, err)

	status, body := doGet(t, app, "/batches")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])
}

func TestGetProgress_PopulatesCacheOnMiss(t *testing.T) {
	mc := cache.NewMemoryCache(&cache.Config{MaxKeys: 10, TTL: time.Minute})
	app, mgr := newTestApp(t, mc)
	ctx := context.Background()

	id, err := mgr.Batch("send_email").Dispatch(ctx)
	require.NoError(t, err)

	status, body := doGet(t, app, "/batches/"+id+"/progress")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id, body["batch_id"])

	cached, err := mc.Get(ctx, cache.CacheKey("progress", id))
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

func TestGetProgress_ServesFromCacheOnHit(t *testing.T) {
	mc := cache.NewMemoryCache(&cache.Config{MaxKeys: 10, TTL: time.Minute})
	app, mgr := newTestApp(t, mc)
	ctx := context.Background()

	id, err := mgr.Batch("send_email").Dispatch(ctx)
	require.NoError(t, err)

	require.NoError(t, mc.Set(ctx, cache.CacheKey("progress", id), &batchmgr.Progress{
		BatchID: id, TotalJobs: 999,
	}, time.Minute))

	status, body := doGet(t, app, "/batches/"+id+"/progress")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(999), body["total_jobs"], "handler must serve the cached value, not a fresh lookup")
}
