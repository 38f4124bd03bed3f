package batchmgr

import (
	"context"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/internal/dispatch"
	"github.com/gongahkia/batchqueue/internal/queueconfig"
	"github.com/gongahkia/batchqueue/internal/registry"
	"github.com/gongahkia/batchqueue/internal/storage"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// Progress is the read-only snapshot returned by GetProgress.
type Progress struct {
	BatchID       string              `json:"batch_id"`
	Status        batchjob.BatchStatus `json:"status"`
	TotalJobs     int                 `json:"total_jobs"`
	CompletedJobs int                 `json:"completed_jobs"`
	FailedJobs    int                 `json:"failed_jobs"`
	PendingJobs   int                 `json:"pending_jobs"`
}

// BatchManager is the entry point bound to a storage backend, a
// dispatcher, queue-name resolution, and the job-class registry.
type BatchManager struct {
	store       storage.Storage
	dispatcher  *dispatch.Dispatcher
	queueConfig *queueconfig.Service
	registry    *registry.Registry
}

// New builds a BatchManager.
func New(store storage.Storage, dispatcher *dispatch.Dispatcher, queueConfig *queueconfig.Service, reg *registry.Registry) *BatchManager {
	return &BatchManager{store: store, dispatcher: dispatcher, queueConfig: queueConfig, registry: reg}
}

// Store exposes the bound storage backend for callers (e.g.
// internal/compensation) that need it alongside the manager.
func (m *BatchManager) Store() storage.Storage { return m.store }

// Dispatcher exposes the bound dispatcher.
func (m *BatchManager) Dispatcher() *dispatch.Dispatcher { return m.dispatcher }

// Batch starts building a parallel batch of jobs.
func (m *BatchManager) Batch(jobs ...interface{}) *Builder {
	return newBuilder(m, batchjob.TypeParallel, jobs)
}

// Chain starts building a sequential chain of jobs.
func (m *BatchManager) Chain(jobs ...interface{}) *Builder {
	return newBuilder(m, batchjob.TypeSequential, jobs)
}

// GetBatch loads a batch with all of its jobs.
func (m *BatchManager) GetBatch(ctx context.Context, id string) (*batchjob.Batch, error) {
	b, err := m.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetProgress returns a lightweight progress snapshot for id.
func (m *BatchManager) GetProgress(ctx context.Context, id string) (*Progress, error) {
	b, err := m.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Progress{
		BatchID:       b.ID,
		Status:        b.Status,
		TotalJobs:     b.TotalJobs,
		CompletedJobs: b.CompletedJobs,
		FailedJobs:    b.FailedJobs,
		PendingJobs:   b.TotalJobs - b.CompletedJobs - b.FailedJobs,
	}, nil
}

// GetBatches lists batches matching filter.
func (m *BatchManager) GetBatches(ctx context.Context, filter storage.BatchFilter, limit, offset int) ([]*batchjob.Batch, error) {
	return m.store.GetBatches(ctx, filter, limit, offset)
}

// CountBatches counts batches matching filter.
func (m *BatchManager) CountBatches(ctx context.Context, filter storage.BatchFilter) (int, error) {
	return m.store.CountBatches(ctx, filter)
}

// AddJobs appends jobs to a non-terminal batch.
// For a parallel batch, the appended jobs are enqueued immediately; for
// a chain, nothing is enqueued — the running chain reaches the new
// positions through its normal step-advance.
func (m *BatchManager) AddJobs(ctx context.Context, batchID string, rawJobs ...interface{}) (*batchjob.Batch, error) {
	b, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return nil, errors.BatchClosedErr(batchID)
	}

	defs := make([]*batchjob.JobDefinition, 0, len(rawJobs))
	for i, raw := range rawJobs {
		def, err := batchjob.NormalizeJob(raw, b.Type, b.TotalJobs+i, m.registry)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	added, err := m.store.AddJobsToBatch(ctx, batchID, defs)
	if err != nil {
		return nil, errors.StorageErr("add jobs to batch", err)
	}

	b, err = m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if b.Type == batchjob.TypeParallel && added > 0 {
		appended := b.Jobs[len(b.Jobs)-added:]
		if err := m.dispatcher.DispatchAppended(ctx, b, appended); err != nil {
			return nil, errors.StorageErr("dispatch appended jobs", err)
		}
	}

	return b, nil
}

// CancelBatch writes the cancelling tombstone, triggers compensation
// for any completed compensation-bearing jobs, then deletes the batch.
// In-flight processors that observe BatchCancelling or a missing batch
// treat it as BatchNotFound and ack without action.
func (m *BatchManager) CancelBatch(ctx context.Context, id string, launchCompensation func(ctx context.Context, b *batchjob.Batch) error) error {
	b, err := m.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.UpdateBatch(ctx, id, map[string]interface{}{"status": batchjob.BatchCancelling}); err != nil {
		return errors.StorageErr("mark batch cancelling", err)
	}

	if launchCompensation != nil && len(b.GetJobsWithCompensation()) > 0 {
		if err := launchCompensation(ctx, b); err != nil {
			return err
		}
	}

	return m.store.DeleteBatch(ctx, id)
}

// Compensate manually triggers compensation for a batch holding
// completed compensation-bearing jobs.
func (m *BatchManager) Compensate(ctx context.Context, id string, launchCompensation func(ctx context.Context, b *batchjob.Batch) error) error {
	b, err := m.store.GetBatch(ctx, id)
	if err != nil {
		return err
	}
	if len(b.GetJobsWithCompensation()) == 0 {
		return nil
	}
	return launchCompensation(ctx, b)
}

// Cleanup removes completed/failed batches older than the cut-off.
func (m *BatchManager) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	return m.store.CleanupOldBatches(ctx, olderThanDays)
}
