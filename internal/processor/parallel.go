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

// ParallelProcessor is the worker-side handler for a parallel batch
// job delivery. It exposes no receive loop of its own — worker.Pool
// drives the dequeue/ack/nack cycle and calls Process per delivery,
// wired in as a worker.JobHandler closure.
type ParallelProcessor struct {
	deps
}

// NewParallelProcessor builds a ParallelProcessor.
func NewParallelProcessor(
	store storage.Storage,
	dispatcher *dispatch.Dispatcher,
	reg *registry.Registry,
	comp *compensation.Service,
	cfg *config.BatchConfig,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *ParallelProcessor {
	return &ParallelProcessor{
		deps: deps{
			store: store, dispatcher: dispatcher,
			registry: reg, compensation: comp, cfg: cfg,
			logger: logger, metrics: metrics,
		},
	}
}

// Process handles one envelope to completion.
func (p *ParallelProcessor) Process(ctx context.Context, env *transport.Envelope) error {
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

	result, _, execErr := runJob(ctx, p.registry, job.Class, env.Args, nil)

	b, err := p.store.GetBatch(ctx, env.BatchID)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	if execErr != nil {
		return p.onFailure(ctx, b, job, execErr, start)
	}
	return p.onSuccess(ctx, b, job, result, start)
}

func (p *ParallelProcessor) onSuccess(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition, result map[string]interface{}, start time.Time) error {
	if err := p.store.UpdateJobStatus(ctx, b.ID, job.Position, batchjob.JobCompleted, result, nil); err != nil {
		return err
	}

	completed, err := p.store.IncrementCompletedJob(ctx, b.ID)
	if err != nil {
		return err
	}

	p.metrics.RecordJob(job.Class, "completed", time.Since(start))

	if completed >= b.TotalJobs {
		if err := transitionTerminal(ctx, p.store, p.cfg, b.ID, batchjob.BatchCompleted); err != nil {
			return err
		}
		p.metrics.RecordBatchTerminal(string(b.Type), "completed", time.Since(b.Created))
		return deliverCallback(ctx, p.dispatcher, b.QueueConfig, b.ID, string(batchjob.BatchCompleted), "", b.Options.OnComplete)
	}
	return nil
}

func (p *ParallelProcessor) onFailure(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition, execErr error, start time.Time) error {
	jobErr := toJobError(execErr)
	if err := p.store.UpdateJobStatus(ctx, b.ID, job.Position, batchjob.JobFailed, nil, jobErr); err != nil {
		return err
	}

	if _, err := p.store.IncrementFailedJob(ctx, b.ID); err != nil {
		return err
	}

	p.metrics.RecordJob(job.Class, "failed", time.Since(start))

	// A parallel batch is declared failed when any job fails; the
	// remaining jobs already enqueued still run to completion.
	if err := transitionTerminal(ctx, p.store, p.cfg, b.ID, batchjob.BatchFailed); err != nil {
		return err
	}
	p.metrics.RecordBatchTerminal(string(b.Type), "failed", time.Since(b.Created))

	if b.Options.OnFailure != nil {
		return deliverCallback(ctx, p.dispatcher, b.QueueConfig, b.ID, string(batchjob.BatchFailed), execErr.Error(), b.Options.OnFailure)
	}
	return nil
}
