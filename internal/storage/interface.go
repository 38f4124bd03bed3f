// Package storage defines the durable state contract for batches and
// their child jobs and its backends: in-memory,
// SQL (Postgres/SQLite), Redis, and MongoDB. Every backend must
// satisfy the same behavioral contract; only performance
// characteristics differ.
package storage

import (
	"context"
	"time"

	"github.com/gongahkia/batchqueue/internal/batchjob"
)

// Storage is the durable state contract every backend implements.
type Storage interface {
	// CreateBatch persists a batch and all of its initial jobs in one
	// atomic operation and returns the batch id.
	CreateBatch(ctx context.Context, b *batchjob.Batch) (string, error)

	// UpdateBatch applies a partial field update to a batch (context,
	// options, status, counters, queue fields, completed_at).
	UpdateBatch(ctx context.Context, id string, fields map[string]interface{}) error

	// GetBatch loads a batch with all of its jobs, or returns
	// errors.ErrBatchNotFound.
	GetBatch(ctx context.Context, id string) (*batchjob.Batch, error)

	// AddJobsToBatch appends jobs to a non-terminal batch, assigning
	// contiguous positions starting at the batch's current total, and
	// returns the number of jobs added.
	AddJobsToBatch(ctx context.Context, id string, jobs []*batchjob.JobDefinition) (int, error)

	// GetJobByPosition looks up a single job row by its position.
	GetJobByPosition(ctx context.Context, batchID string, position int) (*batchjob.JobDefinition, error)

	// GetJobByID looks up a single job row by its JobDefinition id.
	GetJobByID(ctx context.Context, batchID, jobID string) (*batchjob.JobDefinition, error)

	// UpdateJobQueueMessageID stamps the queue-provided message id onto
	// the job row located by position, and marks it running.
	UpdateJobQueueMessageID(ctx context.Context, batchID string, position int, queueMessageID string) error

	// UpdateJobStatus transitions a job row to a terminal or running
	// status, optionally persisting a result or error record.
	UpdateJobStatus(ctx context.Context, batchID string, position int, status batchjob.JobStatus, result map[string]interface{}, jobErr *batchjob.JobError) error

	// IncrementCompletedJob recomputes completed_jobs as
	// COUNT(status = completed) and returns the new value. Recompute,
	// not a blind increment: redeliveries of the same message must not
	// double-count.
	IncrementCompletedJob(ctx context.Context, batchID string) (int, error)

	// IncrementFailedJob recomputes failed_jobs the same way.
	IncrementFailedJob(ctx context.Context, batchID string) (int, error)

	// GetBatchResults returns every job's recorded result, keyed by
	// JobDefinition id.
	GetBatchResults(ctx context.Context, batchID string) (map[string]map[string]interface{}, error)

	// GetAllJobs returns a batch's jobs in position order, optionally
	// filtered by status.
	GetAllJobs(ctx context.Context, batchID string, filter JobFilter) ([]*batchjob.JobDefinition, error)

	// GetBatches lists batches matching filter.
	GetBatches(ctx context.Context, filter BatchFilter, limit, offset int) ([]*batchjob.Batch, error)

	// CountBatches counts batches matching filter.
	CountBatches(ctx context.Context, filter BatchFilter) (int, error)

	// DeleteBatch removes a batch and cascades to its jobs.
	DeleteBatch(ctx context.Context, batchID string) error

	// CleanupOldBatches removes completed/failed batches whose
	// completed_at predates the cut-off and returns the removed count.
	CleanupOldBatches(ctx context.Context, olderThanDays int) (int, error)

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// JobFilter narrows GetAllJobs.
type JobFilter struct {
	Status batchjob.JobStatus // empty = no filter
}

// BatchFilter narrows GetBatches / CountBatches.
type BatchFilter struct {
	Type            batchjob.BatchType   // empty = no filter
	Status          batchjob.BatchStatus // empty = no filter
	HasCompensation *bool
	CreatedBefore   *time.Time
	CreatedAfter    *time.Time
}
