package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/internal/transport"
)

func newTestRouter() *transport.Router {
	return transport.NewRouter(func(name string) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})
}

func TestDispatchInitial_ParallelEnqueuesEveryJob(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	b := batchjob.NewBatch(batchjob.TypeParallel, []*batchjob.JobDefinition{
		{Class: "a"}, {Class: "b"}, {Class: "c"},
	})
	b.QueueConfig = "batchjob"

	require.NoError(t, d.DispatchInitial(ctx, b))

	depth, err := router.Depth(ctx, "batchjob")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestDispatchInitial_SequentialEnqueuesOnlyFirstStep(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	b := batchjob.NewBatch(batchjob.TypeSequential, []*batchjob.JobDefinition{
		{Class: "a"}, {Class: "b"}, {Class: "c"},
	})
	b.QueueConfig = "chainedjobs"

	require.NoError(t, d.DispatchInitial(ctx, b))

	depth, err := router.Depth(ctx, "chainedjobs")
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestDispatchAppended_EnqueuesOnlyGivenJobs(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	b := batchjob.NewBatch(batchjob.TypeParallel, []*batchjob.JobDefinition{{Class: "a"}})
	b.QueueConfig = "batchjob"
	appended := []*batchjob.JobDefinition{{Class: "b"}, {Class: "c"}}

	require.NoError(t, d.DispatchAppended(ctx, b, appended))

	depth, err := router.Depth(ctx, "batchjob")
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestDispatchCallback_SetsIsCallbackFlag(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	spec := &batchjob.CallbackSpec{Class: "notify_done", Args: map[string]interface{}{"x": 1}}
	require.NoError(t, d.DispatchCallback(ctx, "batchjob", "batch-1", "completed", "", spec))

	q, err := router.Queue("batchjob")
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	env, err := transport.FromJob(job)
	require.NoError(t, err)
	assert.True(t, env.IsCallback)
	assert.Equal(t, "notify_done", env.Class)
	assert.Equal(t, "batch-1", env.BatchID)
	assert.Equal(t, 1, env.Args["x"])
	assert.Equal(t, "batch-1", env.Args["batch_id"])
	assert.Equal(t, "completed", env.Args["status"])
	assert.NotContains(t, env.Args, "error")
}

func TestDispatchCallback_IncludesErrorWhenProvided(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	spec := &batchjob.CallbackSpec{Class: "notify_failed"}
	require.NoError(t, d.DispatchCallback(ctx, "batchjob", "batch-2", "failed", "boom", spec))

	q, err := router.Queue("batchjob")
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	env, err := transport.FromJob(job)
	require.NoError(t, err)
	assert.Equal(t, "failed", env.Args["status"])
	assert.Equal(t, "boom", env.Args["error"])
}

func TestDispatchCompensationStep_SetsIsCompensationFlag(t *testing.T) {
	router := newTestRouter()
	d := New(router, 0, 0)
	ctx := context.Background()

	b := batchjob.NewBatch(batchjob.TypeSequential, []*batchjob.JobDefinition{{Class: "refund"}})
	b.QueueConfig = "chainedjobs"

	require.NoError(t, d.DispatchCompensationStep(ctx, b, b.Jobs[0]))

	q, err := router.Queue("chainedjobs")
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	env, err := transport.FromJob(job)
	require.NoError(t, err)
	assert.True(t, env.IsCompensation)
}
