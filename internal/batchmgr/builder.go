// Package batchmgr implements the public entry point for constructing,
// dispatching, introspecting, cancelling, extending, and cleaning up
// batches.
package batchmgr

import (
	"context"

	"github.com/gongahkia/batchqueue/internal/batchjob"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// Builder accumulates context, options, callbacks, and queue selection
// for one batch before Dispatch persists and enqueues it.
type Builder struct {
	mgr       *BatchManager
	batchType batchjob.BatchType
	rawJobs   []interface{}

	context     map[string]interface{}
	options     batchjob.Options
	queueName   string
	queueConfig string
}

func newBuilder(mgr *BatchManager, batchType batchjob.BatchType, rawJobs []interface{}) *Builder {
	return &Builder{
		mgr:       mgr,
		batchType: batchType,
		rawJobs:   rawJobs,
		context:   map[string]interface{}{},
		options:   batchjob.Options{},
	}
}

// WithContext merges m into the batch's shared context.
func (b *Builder) WithContext(m map[string]interface{}) *Builder {
	for k, v := range m {
		b.context[k] = v
	}
	return b
}

// WithOptions sets the batch's recognized options.
func (b *Builder) WithOptions(opts batchjob.Options) *Builder {
	b.options = opts
	return b
}

// OnComplete registers the completion callback job. spec must be a
// {class, args?} pair; a nil spec clears any callback set earlier.
func (b *Builder) OnComplete(spec *batchjob.CallbackSpec) *Builder {
	b.options.OnComplete = spec
	return b
}

// OnFailure registers the failure callback job.
func (b *Builder) OnFailure(spec *batchjob.CallbackSpec) *Builder {
	b.options.OnFailure = spec
	return b
}

// WithQueueName sets the logical queue_name used by queueconfig
// resolution step 2.
func (b *Builder) WithQueueName(name string) *Builder {
	b.queueName = name
	return b
}

// WithQueueConfig sets an explicit concrete queue name, short-circuiting
// queueconfig resolution.
func (b *Builder) WithQueueConfig(name string) *Builder {
	b.queueConfig = name
	return b
}

// Dispatch validates, normalizes, persists, and enqueues the batch,
// returning its id.
func (b *Builder) Dispatch(ctx context.Context) (string, error) {
	if len(b.rawJobs) == 0 {
		return "", errors.EmptyBatchErr("batch() and chain() require at least one job")
	}

	if err := b.options.Validate(); err != nil {
		return "", err
	}
	if err := validateCallback(b.options.OnComplete); err != nil {
		return "", err
	}
	if err := validateCallback(b.options.OnFailure); err != nil {
		return "", err
	}

	jobs := make([]*batchjob.JobDefinition, 0, len(b.rawJobs))
	for i, raw := range b.rawJobs {
		def, err := batchjob.NormalizeJob(raw, b.batchType, i, b.mgr.registry)
		if err != nil {
			return "", err
		}
		jobs = append(jobs, def)
	}

	batch := batchjob.NewBatch(b.batchType, jobs)
	batch.Context = b.context
	batch.Options = b.options
	batch.QueueName = b.queueName
	batch.QueueConfig = b.mgr.queueConfig.Resolve(b.batchType, b.queueName, b.queueConfig)

	id, err := b.mgr.store.CreateBatch(ctx, batch)
	if err != nil {
		return "", errors.StorageErr("create batch", err)
	}
	batch.ID = id

	if err := b.mgr.dispatcher.DispatchInitial(ctx, batch); err != nil {
		return "", errors.StorageErr("dispatch initial batch messages", err)
	}

	return id, nil
}

// validateCallback rejects a callback spec with an empty class. A nil
// func value has no Go equivalent once CallbackSpec is typed as
// {class, args}; the structural check that survives is that class
// must be non-empty.
func validateCallback(spec *batchjob.CallbackSpec) error {
	if spec == nil {
		return nil
	}
	if spec.Class == "" {
		return errors.InvalidCallbackErr("callback must specify a class")
	}
	return nil
}
