// Package compensation builds and launches Saga-style rollback chains
// on sequential batch failure, and implements the two built-in
// callback jobs that report compensation outcome back onto the
// original batch.
package compensation

import (
	"context"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/batchmgr"
	"github.com/gongahkia/batchqueue/internal/storage"
)

// CompleteCallbackClass and FailedCallbackClass are the canonical
// registry class names for the built-in compensation outcome
// callbacks (registry.canonicalClassName already lower-snake-cases
// registrations, so these are written pre-normalized).
const (
	CompleteCallbackClass = "compensation_complete_callback"
	FailedCallbackClass   = "compensation_failed_callback"
)

// Service builds and dispatches compensation chains from a
// BatchManager, which already holds the storage, dispatcher, queue
// resolution, and registry this needs.
type Service struct {
	mgr *batchmgr.BatchManager
}

// New builds a Service bound to mgr.
func New(mgr *batchmgr.BatchManager) *Service {
	return &Service{mgr: mgr}
}

// Launch builds and dispatches a compensation chain for original:
// walks original's jobs in reverse position order, selects those
// completed with a compensation class, and persists a new sequential
// chain inheriting original's queue routing and context. Returns the
// new chain's batch id.
func (s *Service) Launch(ctx context.Context, original *batchjob.Batch) (string, error) {
	candidates := original.GetJobsWithCompensation()
	if len(candidates) == 0 {
		return "", nil
	}

	// GetJobsWithCompensation returns position-ascending order;
	// compensation runs in reverse.
	rawJobs := make([]interface{}, 0, len(candidates))
	for i := 0; i < len(candidates); i++ {
		orig := candidates[len(candidates)-1-i]
		rawJobs = append(rawJobs, map[string]interface{}{
			"class": orig.Compensation,
			"args":  compensationArgs(orig, original, i),
		})
	}

	builder := s.mgr.Chain(rawJobs...).
		WithContext(original.Context).
		WithQueueConfig(original.QueueConfig).
		OnComplete(&batchjob.CallbackSpec{
			Class: CompleteCallbackClass,
			Args:  map[string]interface{}{"original_batch_id": original.ID},
		}).
		OnFailure(&batchjob.CallbackSpec{
			Class: FailedCallbackClass,
			Args:  map[string]interface{}{"original_batch_id": original.ID},
		})

	compID, err := builder.Dispatch(ctx)
	if err != nil {
		return "", err
	}

	if err := mergeBatchContext(ctx, s.mgr.Store(), original.ID, map[string]interface{}{
		"compensation_batch_id": compID,
		"compensation_status":   "running",
	}); err != nil {
		return compID, err
	}

	return compID, nil
}

// compensationArgs builds the `_compensation` marker object a
// compensation worker recognizes.
func compensationArgs(orig *batchjob.JobDefinition, original *batchjob.Batch, order int) map[string]interface{} {
	args := make(map[string]interface{}, len(orig.Args)+1)
	for k, v := range orig.Args {
		args[k] = v
	}
	args["_compensation"] = map[string]interface{}{
		"original_batch_id": original.ID,
		"original_job_class": orig.Class,
		"original_position":  orig.Position,
		"original_result":    orig.Result,
		"compensation_order": order,
	}
	return args
}

// mergeBatchContext performs a read-modify-write of a batch's context
// map: Storage.UpdateBatch replaces the whole "context" field, so
// partial-key updates require loading the current value first.
func mergeBatchContext(ctx context.Context, store storage.Storage, batchID string, updates map[string]interface{}) error {
	b, err := store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	merged := make(map[string]interface{}, len(b.Context)+len(updates))
	for k, v := range b.Context {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}

	return store.UpdateBatch(ctx, batchID, map[string]interface{}{"context": merged})
}
