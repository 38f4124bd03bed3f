package processor

import (
	"context"
	"time"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/compensation"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
)

// ChainProcessor is the worker-side handler for a sequential chain
// step delivery. Because a chain only ever has one message in flight,
// worker.Pool's dequeue/Process/ack-or-nack loop handles every chain
// concurrently without extra coordination.
type ChainProcessor struct {
	deps
}

// NewChainProcessor builds a ChainProcessor.
func NewChainProcessor(
	store storage.Storage,
	dispatcher *dispatch.Dispatcher,
	reg *registry.Registry,
	comp *compensation.Service,
	cfg *config.BatchConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *ChainProcessor {
	return &ChainProcessor{
		deps: deps{
			store: store, dispatcher: dispatcher,
			registry: reg, compensation: comp, cfg: cfg,
			logger: logger, metrics: metrics,
		},
	}
}

// Process advances one chain step to completion.
func (p *ChainProcessor) Process(ctx context.Context, env *transport.Envelope) error {
	switch classify(env) {
	case kindCallback:
		return runCallback(ctx, &p.deps, env)
	case kindPassthrough:
		return nil
	}

	start := time.Now()

	job, err := p.store.GetJobByPosition(ctx, env.BatchID, env.JobPosition)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	if err := p.store.UpdateJobQueueMessageID(ctx, env.BatchID, env.JobPosition, env.QueueMessageID); err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	// Reload the batch for the latest context, catching any context
	// mutation by a concurrently-running callback or manual update since
	// dispatch. The reloaded context reaches ContextAware jobs through
	// SetContext; env.Args is passed as BuildEnvelope merged it at
	// dispatch time (context keys override the job's own args there).
	b, err := p.store.GetBatch(ctx, env.BatchID)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	result, newContext, execErr := runJob(ctx, p.registry, job.Class, env.Args, b.Context)

	if execErr != nil {
		return p.onFailure(ctx, b, job, execErr, start)
	}
	return p.onSuccess(ctx, b, job, result, newContext, start)
}

func (p *ChainProcessor) onSuccess(
	ctx context.Context,
	b *batchjob.Batch,
	job *batchjob.JobDefinition,
	result map[string]interface{},
	newContext map[string]interface{},
	start time.Time,
) error {
	if err := p.store.UpdateJobStatus(ctx, b.ID, job.Position, batchjob.JobCompleted, result, nil); err != nil {
		return err
	}

	if newContext != nil && !mapsEqual(newContext, b.Context) {
		if err := p.store.UpdateBatch(ctx, b.ID, map[string]interface{}{"context": newContext}); err != nil {
			return err
		}
	}

	completed, err := p.store.IncrementCompletedJob(ctx, b.ID)
	if err != nil {
		return err
	}

	p.metrics.RecordJob(job.Class, "completed", time.Since(start))

	// Reload after the context/counter writes to pick up addJobs
	// growth of total_jobs before deciding whether to advance.
	fresh, err := p.store.GetBatch(ctx, b.ID)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	if completed >= fresh.TotalJobs {
		if err := transitionTerminal(ctx, p.store, p.cfg, fresh.ID, batchjob.BatchCompleted); err != nil {
			return err
		}
		p.metrics.RecordBatchTerminal(string(fresh.Type), "completed", time.Since(fresh.Created))
		return deliverCallback(ctx, p.dispatcher, fresh.QueueConfig, fresh.ID, string(batchjob.BatchCompleted), "", fresh.Options.OnComplete)
	}

	next := fresh.GetJobByPosition(job.Position + 1)
	if next == nil {
		return nil
	}
	return p.dispatcher.DispatchNextStep(ctx, fresh, next)
}

func (p *ChainProcessor) onFailure(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition, execErr error, start time.Time) error {
	jobErr := toJobError(execErr)
	if err := p.store.UpdateJobStatus(ctx, b.ID, job.Position, batchjob.JobFailed, nil, jobErr); err != nil {
		return err
	}

	if _, err := p.store.IncrementFailedJob(ctx, b.ID); err != nil {
		return err
	}

	p.metrics.RecordJob(job.Class, "failed", time.Since(start))

	// Stop advancing: positions greater than this one stay pending.
	if err := transitionTerminal(ctx, p.store, p.cfg, b.ID, batchjob.BatchFailed); err != nil {
		return err
	}
	p.metrics.RecordBatchTerminal(string(b.Type), "failed", time.Since(b.Created))

	if err := deliverCallback(ctx, p.dispatcher, b.QueueConfig, b.ID, string(batchjob.BatchFailed), execErr.Error(), b.Options.OnFailure); err != nil {
		return err
	}

	fresh, err := p.store.GetBatch(ctx, b.ID)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	if len(fresh.GetJobsWithCompensation()) == 0 {
		return nil
	}

	p.metrics.CompensationChains.WithLabelValues("launched").Inc()
	_, err = p.compensation.Launch(ctx, fresh)
	return err
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		// shallow compare; deep equality across arbitrary JSON values
		// is not required here — a false negative only costs one
		// redundant UpdateBatch call, never a correctness issue.
		if toComparableString(v) != toComparableString(bv) {
			return false
		}
	}
	return true
}
