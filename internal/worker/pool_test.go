package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/queue"
)

func TestPool_StartProcessesEnqueuedJobsAcrossWorkers(t *testing.T) {
	q := queue.NewMemoryQueue()
	processed := make(chan struct{}, 5)

	p := NewPool(PoolConfig{WorkerCount: 2}, q, func(ctx context.Context, j *queue.Job) error {
		processed <- struct{}{}
		return nil
	})

	require.NoError(t, p.Start(2))
	defer p.Stop(time.Second)

	assert.Equal(t, 2, p.GetWorkerCount())

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), queue.NewJob(queue.JobTypeBatchJob, nil)))
	}

	for i := 0; i < 3; i++ {
		select {
		case <-processed:
		case <-time.After(time.Second):
			t.Fatal("pool did not process all enqueued jobs in time")
		}
	}
}

func TestPool_StopWaitsForWorkersToExit(t *testing.T) {
	q := queue.NewMemoryQueue()
	p := NewPool(PoolConfig{WorkerCount: 1}, q, func(ctx context.Context, j *queue.Job) error { return nil })
	require.NoError(t, p.Start(1))

	require.NoError(t, p.Stop(time.Second))
}

func TestPool_GetStatsAggregatesAcrossWorkers(t *testing.T) {
	q := queue.NewMemoryQueue()
	processed := make(chan struct{}, 1)

	p := NewPool(PoolConfig{WorkerCount: 1}, q, func(ctx context.Context, j *queue.Job) error {
		processed <- struct{}{}
		return nil
	})
	require.NoError(t, p.Start(1))
	defer p.Stop(time.Second)

	require.NoError(t, q.Enqueue(context.Background(), queue.NewJob(queue.JobTypeBatchJob, nil)))
	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("pool did not process job in time")
	}

	require.Eventually(t, func() bool {
		return p.GetStats().TotalJobsProcessed == 1
	}, time.Second, 10*time.Millisecond)

	stats := p.GetStats()
	assert.Equal(t, 1, stats.WorkerCount)
	assert.Equal(t, int64(1), stats.TotalJobsProcessed)
}
