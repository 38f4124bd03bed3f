package grpcapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
)

func newTestService(t *testing.T) (*BatchService, *batchmgr.BatchManager) {
	t.Helper()
	router := transport.NewRouter(func(name string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
	d := dispatch.New(router, 0, 0)
	qcfg := queueconfig.New(&config.BatchConfig{})
	mgr := batchmgr.New(storage.NewMemoryStorage(), d, qcfg, registry.New())
	return NewBatchService(mgr, observability.NewLogger("error", "json")), mgr
}

func TestBatchService_GetBatchReturnsPersistedBatch(t *testing.T) {
	svc, mgr := newTestService(t)
	id, err := mgr.Batch("send_email").Dispatch(context.Background())
	require.NoError(t, err)

	resp, err := svc.GetBatch(context.Background(), &GetBatchRequest{BatchID: id})
	require.NoError(t, err)
	assert.Equal(t, id, resp.Batch.ID)
}

func TestBatchService_GetBatchUnknownIDReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetBatch(context.Background(), &GetBatchRequest{BatchID: "missing"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestBatchService_GetProgressReportsJobCounts(t *testing.T) {
	svc, mgr := newTestService(t)
	id, err := mgr.Batch("a", "b").Dispatch(context.Background())
	require.NoError(t, err)

	resp, err := svc.GetProgress(context.Background(), &GetProgressRequest{BatchID: id})
	require.NoError(t, err)
	assert.Equal(t, id, resp.Progress.BatchID)
	assert.Equal(t, 2, resp.Progress.TotalJobs)
}

func TestBatchServiceDesc_ExposesBothMethods(t *testing.T) {
	names := make([]string, 0, len(batchServiceDesc.Methods))
	for _, m := range batchServiceDesc.Methods {
		names = append(names, m.MethodName)
	}
	assert.ElementsMatch(t, []string{"GetBatch", "GetProgress"}, names)
}
