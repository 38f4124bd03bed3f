// Package batchjob holds the value types for batches and their child
// jobs, and the normalization logic that turns the four shapes of
// user-supplied job input into a canonical JobDefinition.
package batchjob

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gongahkia/batchqueue/pkg/errors"
)

var optionsValidator = validator.New()

// BatchType distinguishes a parallel batch from a sequential chain.
type BatchType string

const (
	TypeParallel   BatchType = "parallel"
	TypeSequential BatchType = "sequential"
)

// BatchStatus is the lifecycle state of a Batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchRunning    BatchStatus = "running"
	BatchCancelling BatchStatus = "cancelling" // tombstone written before compensation launches
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// IsTerminal reports whether further job appends must be rejected.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// JobStatus is the lifecycle state of a BatchJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobError is the persisted error record for a failed job.
type JobError struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// CallbackSpec is a user-supplied completion/failure callback job. It
// must be a serializable {class, args} pair — an inline function
// reference is rejected at construction.
type CallbackSpec struct {
	Class string                 `json:"class"`
	Args  map[string]interface{} `json:"args,omitempty"`
}

// Options holds the recognized Batch.options keys.
type Options struct {
	Name             string        `json:"name,omitempty" validate:"omitempty,max=200"`
	OnComplete       *CallbackSpec `json:"on_complete,omitempty"`
	OnFailure        *CallbackSpec `json:"on_failure,omitempty"`
	MaxRetries       int           `json:"max_retries,omitempty" validate:"gte=0,lte=100"`
	RetryDelay       time.Duration `json:"retry_delay,omitempty" validate:"gte=0"`
	Timeout          time.Duration `json:"timeout,omitempty" validate:"gte=0"`
	FailOnFirstError bool          `json:"fail_on_first_error,omitempty"`
}

// Validate checks Options against its struct tags before a batch is
// dispatched, catching a negative retry count or an absurd name length
// before any job is persisted.
func (o *Options) Validate() error {
	if err := optionsValidator.Struct(o); err != nil {
		return errors.InvalidJob("invalid batch options", err)
	}
	return nil
}

// JobDefinition is the canonical, normalized form every job input
// shape converges to.
type JobDefinition struct {
	ID            string                 `json:"id"`
	Class         string                 `json:"class"`
	Compensation  string                 `json:"compensation,omitempty"`
	Position      int                    `json:"position"`
	Args          map[string]interface{} `json:"args"`
	JobID         string                 `json:"job_id,omitempty"` // queue-provided message id
	Status        JobStatus              `json:"status"`
	Result        map[string]interface{} `json:"result,omitempty"`
	Error         *JobError              `json:"error,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// HasCompensation reports whether this job carries a compensation
// partner class.
func (j *JobDefinition) HasCompensation() bool {
	return j.Compensation != ""
}

// ClassExistenceChecker is satisfied by the job registry; normalization
// depends only on this narrow interface so batchjob never imports
// internal/registry (which would be a cyclic-looking dependency on the
// capability layer).
type ClassExistenceChecker interface {
	Has(class string) bool
}

// NormalizeJob converts one of the four accepted job input shapes into
// a JobDefinition at the given position:
//
//  1. a class name string
//  2. a 2-element []string{job, compensation} (sequential only)
//  3. a map[string]interface{} with "class", optional "args"/"compensation"
//  4. an already-built *JobDefinition (round-trip from storage)
func NormalizeJob(raw interface{}, batchType BatchType, position int, classes ClassExistenceChecker) (*JobDefinition, error) {
	var def *JobDefinition

	switch v := raw.(type) {
	case string:
		def = &JobDefinition{Class: v, Args: map[string]interface{}{}}

	case []string:
		if len(v) != 2 {
			return nil, errors.InvalidJob("job/compensation tuple must have exactly 2 elements", errors.ErrInvalidJob)
		}
		if batchType != TypeSequential {
			return nil, errors.InvalidJob("compensation is only valid on sequential batches", errors.ErrCompensationOnParallel)
		}
		def = &JobDefinition{Class: v[0], Compensation: v[1], Args: map[string]interface{}{}}

	case map[string]interface{}:
		class, ok := v["class"].(string)
		if !ok || class == "" {
			return nil, errors.InvalidJob("job map missing required \"class\" key", errors.ErrInvalidJob)
		}
		def = &JobDefinition{Class: class, Args: map[string]interface{}{}}
		if args, ok := v["args"].(map[string]interface{}); ok {
			def.Args = args
		}
		if comp, ok := v["compensation"].(string); ok && comp != "" {
			if batchType != TypeSequential {
				return nil, errors.InvalidJob("compensation is only valid on sequential batches", errors.ErrCompensationOnParallel)
			}
			def.Compensation = comp
		}

	case *JobDefinition:
		cp := *v
		if cp.Compensation != "" && batchType != TypeSequential {
			return nil, errors.InvalidJob("compensation is only valid on sequential batches", errors.ErrCompensationOnParallel)
		}
		def = &cp

	default:
		return nil, errors.InvalidJob(fmt.Sprintf("unsupported job input shape %T", raw), errors.ErrInvalidJob)
	}

	if classes != nil && !classes.Has(def.Class) {
		return nil, errors.InvalidJob(fmt.Sprintf("unknown class %q", def.Class), errors.ErrUnknownClass)
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Args == nil {
		def.Args = map[string]interface{}{}
	}
	if def.Status == "" {
		def.Status = JobPending
	}
	def.Position = position

	return def, nil
}

// Batch is one root entity: a submitted group of jobs, parallel or
// sequential.
type Batch struct {
	ID            string                 `json:"id"`
	Type          BatchType              `json:"type"`
	Status        BatchStatus            `json:"status"`
	TotalJobs     int                    `json:"total_jobs"`
	CompletedJobs int                    `json:"completed_jobs"`
	FailedJobs    int                    `json:"failed_jobs"`
	Context       map[string]interface{} `json:"context"`
	Options       Options                `json:"options"`
	QueueName     string                 `json:"queue_name,omitempty"`
	QueueConfig   string                 `json:"queue_config,omitempty"`
	Jobs          []*JobDefinition       `json:"jobs"`
	Created       time.Time              `json:"created"`
	Modified      time.Time              `json:"modified"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

// NewBatch builds a Batch with a fresh id and the given jobs in
// position order. Positions are assigned by index.
func NewBatch(batchType BatchType, jobs []*JobDefinition) *Batch {
	now := time.Now()
	for i, j := range jobs {
		j.Position = i
	}
	return &Batch{
		ID:        uuid.NewString(),
		Type:      batchType,
		Status:    BatchPending,
		TotalJobs: len(jobs),
		Context:   map[string]interface{}{},
		Jobs:      jobs,
		Created:   now,
		Modified:  now,
	}
}

// IsComplete reports whether every job has reached a terminal status
// and the batch's own terminal state has been reached.
func (b *Batch) IsComplete() bool {
	return b.Status == BatchCompleted
}

// HasFailed reports whether the batch's terminal state is failed.
func (b *Batch) HasFailed() bool {
	return b.Status == BatchFailed
}

// HasCompensation reports whether any job in the batch carries a
// compensation partner.
func (b *Batch) HasCompensation() bool {
	for _, j := range b.Jobs {
		if j.HasCompensation() {
			return true
		}
	}
	return false
}

// GetJob returns the job with the given id, or nil.
func (b *Batch) GetJob(id string) *JobDefinition {
	for _, j := range b.Jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// GetJobByPosition returns the job at the given position, or nil.
func (b *Batch) GetJobByPosition(position int) *JobDefinition {
	for _, j := range b.Jobs {
		if j.Position == position {
			return j
		}
	}
	return nil
}

// GetJobsWithCompensation returns every completed job carrying a
// compensation partner, used to build a compensation chain.
func (b *Batch) GetJobsWithCompensation() []*JobDefinition {
	out := make([]*JobDefinition, 0)
	for _, j := range b.Jobs {
		if j.Status == JobCompleted && j.HasCompensation() {
			out = append(out, j)
		}
	}
	return out
}

// GetNextSequentialJob returns the job immediately following
// currentPosition, or nil if currentPosition was the last one.
func (b *Batch) GetNextSequentialJob(currentPosition int) *JobDefinition {
	return b.GetJobByPosition(currentPosition + 1)
}

// ToMap serializes the batch to a flat map for storage round-trip.
// Field order is insignificant.
func (b *Batch) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":             b.ID,
		"type":           string(b.Type),
		"status":         string(b.Status),
		"total_jobs":     b.TotalJobs,
		"completed_jobs": b.CompletedJobs,
		"failed_jobs":    b.FailedJobs,
		"context":        b.Context,
		"options":        b.Options,
		"queue_name":     b.QueueName,
		"queue_config":   b.QueueConfig,
		"jobs":           b.Jobs,
		"created":        b.Created,
		"modified":       b.Modified,
	}
	if b.CompletedAt != nil {
		m["completed_at"] = *b.CompletedAt
	}
	return m
}
