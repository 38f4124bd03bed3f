package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/pkg/errors"
)

func TestMemoryQueue_EnqueueThenDequeue(t *testing.T) {
	q := NewMemoryQueue()
	job := NewJob(JobTypeBatchJob, map[string]interface{}{"k": "v"})

	require.NoError(t, q.Enqueue(context.Background(), job))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobStatusRunning, got.Status)
}

func TestMemoryQueue_DequeueOrdersByPriority(t *testing.T) {
	q := NewMemoryQueue()
	low := NewJob(JobTypeBatchJob, nil)
	low.SetPriority(PriorityLow)
	high := NewJob(JobTypeBatchJob, nil)
	high.SetPriority(PriorityHigh)

	require.NoError(t, q.Enqueue(context.Background(), low))
	require.NoError(t, q.Enqueue(context.Background(), high))

	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, high.ID, first.ID)
}

func TestMemoryQueue_DequeueBlocksUntilEnqueueOrContextCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_AckRemovesJobFromTracking(t *testing.T) {
	q := NewMemoryQueue()
	job := NewJob(JobTypeBatchJob, nil)
	require.NoError(t, q.Enqueue(context.Background(), job))

	require.NoError(t, q.Ack(context.Background(), job.ID))
	assert.Error(t, q.Ack(context.Background(), job.ID))
}

func TestMemoryQueue_NackRequeuesWhenRetryable(t *testing.T) {
	q := NewMemoryQueue()
	job := NewJob(JobTypeBatchJob, nil)
	job.MaxAttempts = 3
	require.NoError(t, q.Enqueue(context.Background(), job))

	dequeued, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	dequeued.Status = JobStatusRetrying

	require.NoError(t, q.Nack(context.Background(), dequeued.ID, true))

	depth, err := q.GetDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestMemoryQueue_NackDropsJobWhenNotRetryable(t *testing.T) {
	q := NewMemoryQueue()
	job := NewJob(JobTypeBatchJob, nil)
	job.MaxAttempts = 1
	require.NoError(t, q.Enqueue(context.Background(), job))

	dequeued, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	require.NoError(t, q.Nack(context.Background(), dequeued.ID, true))

	depth, err := q.GetDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestMemoryQueue_CloseRejectsFurtherEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), NewJob(JobTypeBatchJob, nil))
	assert.ErrorIs(t, err, errors.ErrQueueFull)
}

func TestMemoryQueue_GetStatsCountsPendingJobs(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(context.Background(), NewJob(JobTypeBatchJob, nil)))
	require.NoError(t, q.Enqueue(context.Background(), NewJob(JobTypeBatchJob, nil)))

	stats := q.GetStats()
	assert.Equal(t, 2, stats.Depth)
	assert.Equal(t, 2, stats.Pending)
}

func TestMemoryQueue_ClearEmptiesQueue(t *testing.T) {
	q := NewMemoryQueue()
	require.NoError(t, q.Enqueue(context.Background(), NewJob(JobTypeBatchJob, nil)))
	q.Clear()

	depth, err := q.GetDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}
