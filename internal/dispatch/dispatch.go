// Package dispatch translates a persisted batch into its initial queue
// messages.
package dispatch

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/transport"
)

// Dispatcher enqueues a batch's initial messages onto the queue its
// BatchManager resolved via queueconfig.
type Dispatcher struct {
	router *transport.Router

	// compensationLimiter throttles the fan-out when a compensation
	// chain is built from a long chain's completed steps; a chain's
	// normal step-advance never needs it since only one message is
	// ever in flight per chain.
	compensationLimiter *rate.Limiter
}

// New builds a Dispatcher. compensationBurst is the limiter's token
// bucket size; 0 disables rate limiting.
func New(router *transport.Router, compensationPerSecond float64, compensationBurst int) *Dispatcher {
	var limiter *rate.Limiter
	if compensationBurst > 0 {
		limiter = rate.NewLimiter(rate.Limit(compensationPerSecond), compensationBurst)
	}
	return &Dispatcher{router: router, compensationLimiter: limiter}
}

// DispatchInitial enqueues a freshly-persisted batch's first messages:
// every job for a parallel batch, or only position 0 for a sequential
// chain.
func (d *Dispatcher) DispatchInitial(ctx context.Context, b *batchjob.Batch) error {
	if b.Type == batchjob.TypeSequential {
		job := b.GetJobByPosition(0)
		if job == nil {
			return nil
		}
		return d.enqueue(ctx, b, job)
	}

	for _, job := range b.Jobs {
		if err := d.enqueue(ctx, b, job); err != nil {
			return err
		}
	}
	return nil
}

// DispatchAppended enqueues newly appended jobs for a parallel batch so
// dynamically-added work runs promptly. Chains
// never call this: a running chain reaches appended positions through
// its normal step-advance.
func (d *Dispatcher) DispatchAppended(ctx context.Context, b *batchjob.Batch, jobs []*batchjob.JobDefinition) error {
	for _, job := range jobs {
		if err := d.enqueue(ctx, b, job); err != nil {
			return err
		}
	}
	return nil
}

// DispatchNextStep enqueues the single next chain step after a
// successful step commit.
func (d *Dispatcher) DispatchNextStep(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition) error {
	return d.enqueue(ctx, b, job)
}

// DispatchCompensationStep enqueues one step of a compensation chain,
// rate-limited when the dispatcher was configured with a limiter.
func (d *Dispatcher) DispatchCompensationStep(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition) error {
	if d.compensationLimiter != nil {
		if err := d.compensationLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	env := transport.BuildEnvelope(b, job)
	env.IsCompensation = true
	return d.router.Publish(ctx, b.QueueConfig, env)
}

// DispatchCallback enqueues a completion/failure callback job. The
// envelope's batch_id names the batch that just finished, and its args
// carry batch_id/status/error so the callback job's Execute sees them
// even though only args (not envelope routing fields) reach user code.
// errMsg is empty for an on_complete callback.
func (d *Dispatcher) DispatchCallback(ctx context.Context, queueName, batchID, status, errMsg string, spec *batchjob.CallbackSpec) error {
	args := make(map[string]interface{}, len(spec.Args)+3)
	for k, v := range spec.Args {
		args[k] = v
	}
	args["batch_id"] = batchID
	args["status"] = status
	if errMsg != "" {
		args["error"] = errMsg
	}

	env := &transport.Envelope{
		BatchID:    batchID,
		Class:      spec.Class,
		Args:       args,
		IsCallback: true,
	}
	return d.router.Publish(ctx, queueName, env)
}

func (d *Dispatcher) enqueue(ctx context.Context, b *batchjob.Batch, job *batchjob.JobDefinition) error {
	env := transport.BuildEnvelope(b, job)
	return d.router.Publish(ctx, b.QueueConfig, env)
}
