package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/queue"
)

func TestWorker_ProcessJobSucceeds_AcksAndCountsProcessed(t *testing.T) {
	q := queue.NewMemoryQueue()
	job := queue.NewJob(queue.JobTypeBatchJob, nil)
	require.NoError(t, q.Enqueue(context.Background(), job))

	dequeued, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	w := NewWorker(1, q, func(ctx context.Context, j *queue.Job) error { return nil })
	w.processJob(context.Background(), dequeued)

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.JobsProcessed)
	assert.Equal(t, int64(0), stats.JobsFailed)
	assert.False(t, stats.IsBusy)
	assert.Nil(t, w.GetCurrentJob())

	require.Error(t, q.Ack(context.Background(), dequeued.ID))
}

func TestWorker_ProcessJobFails_NacksAndCountsFailed(t *testing.T) {
	q := queue.NewMemoryQueue()
	job := queue.NewJob(queue.JobTypeBatchJob, nil)
	job.MaxAttempts = 1
	require.NoError(t, q.Enqueue(context.Background(), job))

	dequeued, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	w := NewWorker(2, q, func(ctx context.Context, j *queue.Job) error { return errors.New("boom") })
	w.processJob(context.Background(), dequeued)

	stats := w.GetStats()
	assert.Equal(t, int64(0), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsFailed)

	depth, err := q.GetDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestWorker_GetIDReturnsConstructorValue(t *testing.T) {
	w := NewWorker(7, queue.NewMemoryQueue(), func(ctx context.Context, j *queue.Job) error { return nil })
	assert.Equal(t, 7, w.GetID())
}

func TestWorker_Run_ProcessesEnqueuedJobThenStopsOnCancel(t *testing.T) {
	q := queue.NewMemoryQueue()
	processed := make(chan struct{}, 1)

	w := NewWorker(3, q, func(ctx context.Context, j *queue.Job) error {
		processed <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.NoError(t, q.Enqueue(context.Background(), queue.NewJob(queue.JobTypeBatchJob, nil)))

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("worker did not process the enqueued job in time")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
