package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/compensation"
	"github.com/gongahkia/batchqueue/internal/config"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/observability"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/internal/transport"
	"github.com/gongahkia/batchqueue/pkg/errors"
	"github.com/gongahkia/batchqueue/pkg/jobapi"
)

// deps bundles the collaborators both processors share: store,
// dispatcher, registry, compensation service, batch config, logger and
// metrics, in the order their constructors take them.
type deps struct {
	store        storage.Storage
	dispatcher   *dispatch.Dispatcher
	registry     *registry.Registry
	compensation *compensation.Service
	cfg          *config.BatchConfig
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// runJob instantiates the registered class and invokes it, capturing a
// ContextAware/ResultAware opt-in as applicable.
func runJob(ctx context.Context, reg *registry.Registry, class string, args, chainContext map[string]interface{}) (result map[string]interface{}, newContext map[string]interface{}, execErr error) {
	instance, err := reg.New(class)
	if err != nil {
		return nil, nil, err
	}

	if chainContext != nil {
		if aware, ok := instance.(jobapi.ContextAware); ok {
			aware.SetContext(cloneMap(chainContext))
		}
	}

	execErr = instance.Execute(ctx, args)

	if aware, ok := instance.(jobapi.ContextAware); ok {
		newContext = aware.GetContext()
	}
	if resAware, ok := instance.(jobapi.ResultAware); ok {
		result = resAware.Result()
	}

	return result, newContext, execErr
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// toComparableString gives ChainProcessor's mapsEqual a cheap
// stand-in for deep equality across arbitrary JSON-shaped context
// values.
func toComparableString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}

func toJobError(err error) *batchjob.JobError {
	if err == nil {
		return nil
	}
	return &batchjob.JobError{Message: err.Error()}
}

// transitionTerminal moves a batch to a terminal status honoring the
// Config.Batch.StickyFailure toggle: once failed, a later
// completed_jobs == total_jobs observation never flips it back,
// unless StickyFailure is disabled.
func transitionTerminal(ctx context.Context, store storage.Storage, cfg *config.BatchConfig, batchID string, target batchjob.BatchStatus) error {
	b, err := store.GetBatch(ctx, batchID)
	if err != nil {
		if isBatchGone(err) {
			return nil
		}
		return err
	}

	if b.Status.IsTerminal() {
		if target == batchjob.BatchCompleted && b.Status == batchjob.BatchFailed && cfg.StickyFailure {
			return nil
		}
		if b.Status == target {
			return nil
		}
	}

	now := time.Now()
	return store.UpdateBatch(ctx, batchID, map[string]interface{}{
		"status":       target,
		"completed_at": now,
	})
}

func isBatchGone(err error) bool {
	return stderrors.Is(err, errors.ErrBatchNotFound)
}

// deliverCallback dispatches a completion/failure callback job if spec
// is configured, embedding the finishing batch's id/status/error.
func deliverCallback(ctx context.Context, d *dispatch.Dispatcher, queueName, batchID, status, errMsg string, spec *batchjob.CallbackSpec) error {
	if spec == nil {
		return nil
	}
	return d.DispatchCallback(ctx, queueName, batchID, status, errMsg, spec)
}

// runCallback executes a delivered on_complete/on_failure callback
// envelope. It looks up the originating batch by the envelope's
// batch_id to give the callback job the same ContextAware read-back-
// and-persist treatment a normal chain step gets; a batch that is
// already gone (deleted/cancelled) just means the callback runs
// without context plumbing.
func runCallback(ctx context.Context, d *deps, env *transport.Envelope) error {
	var chainContext map[string]interface{}
	b, err := d.store.GetBatch(ctx, env.BatchID)
	switch {
	case err == nil:
		chainContext = b.Context
	case isBatchGone(err):
		b = nil
	default:
		return err
	}

	_, newContext, execErr := runJob(ctx, d.registry, env.Class, env.Args, chainContext)
	if execErr != nil {
		return execErr
	}

	if b != nil && newContext != nil && !mapsEqual(newContext, b.Context) {
		if err := d.store.UpdateBatch(ctx, b.ID, map[string]interface{}{"context": newContext}); err != nil {
			return err
		}
	}
	return nil
}
