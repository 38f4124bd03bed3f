package grpcapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
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

func TestJSONCodec_RoundTrips(t *testing.T) {
	var codec jsonCodec
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Marshal(&GetBatchRequest{BatchID: "b-1"})
	require.NoError(t, err)

	out := new(GetBatchRequest)
	require.NoError(t, codec.Unmarshal(data, out))
	assert.Equal(t, "b-1", out.BatchID)
}

func TestLoggingInterceptor_PassesThroughResponse(t *testing.T) {
	interceptor := loggingInterceptor(observability.NewLogger("error", "json"))
	info := &grpc.UnaryServerInfo{FullMethod: "/batchqueue.BatchService/GetBatch"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRecoveryInterceptor_TurnsPanicIntoInternalStatus(t *testing.T) {
	interceptor := recoveryInterceptor(observability.NewLogger("error", "json"))
	info := &grpc.UnaryServerInfo{FullMethod: "/batchqueue.BatchService/GetBatch"}

	_, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRecoveryInterceptor_PropagatesNormalError(t *testing.T) {
	interceptor := recoveryInterceptor(observability.NewLogger("error", "json"))
	info := &grpc.UnaryServerInfo{FullMethod: "/batchqueue.BatchService/GetBatch"}

	_, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, errors.New("plain failure")
	})
	require.Error(t, err)
	assert.Equal(t, "plain failure", err.Error())
}

var serverTestMetrics = observability.NewMetrics()

func TestNewServer_BindsListenerAndStops(t *testing.T) {
	router := transport.NewRouter(func(name string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
	mgr := batchmgr.New(storage.NewMemoryStorage(), dispatch.New(router, 0, 0), queueconfig.New(&config.BatchConfig{}), registry.New())

	srv, err := NewServer(&ServerConfig{
		Port:    0,
		Manager: mgr,
		Logger:  observability.NewLogger("error", "json"),
		Metrics: serverTestMetrics,
	})
	require.NoError(t, err)
	defer srv.Stop()

	assert.NotNil(t, srv.GetListener())
	assert.NotEqual(t, "", srv.GetListener().Addr().String())
}
