package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gongahkia/batchqueue/internal/queue"
	"github.com/gongahkia/batchqueue/pkg/errors"
)

// Factory builds a fresh queue.Queue bound to the given queue name.
// internal/queue implementations are one-instance-per-stream (see
// RedisQueueConfig.Stream, NATSQueueConfig.Subject), so Router needs a
// constructor per name rather than a single shared client.
type Factory func(queueName string) (queue.Queue, error)

// Router lazily creates and caches one queue.Queue per resolved queue
// name. Dispatch uses it to Publish outbound envelopes; worker.Pool
// uses Queue to obtain the same cached instance for inbound
// Dequeue/Ack/Nack, so a named queue is only ever opened once.
type Router struct {
	factory Factory

	mu     sync.RWMutex
	queues map[string]queue.Queue
}

// NewRouter builds a Router backed by factory.
func NewRouter(factory Factory) *Router {
	return &Router{
		factory: factory,
		queues:  make(map[string]queue.Queue),
	}
}

// Queue returns the cached queue.Queue for queueName, opening it via
// the factory on first use.
func (r *Router) Queue(queueName string) (queue.Queue, error) {
	r.mu.RLock()
	q, ok := r.queues[queueName]
	r.mu.RUnlock()
	if ok {
		return q, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[queueName]; ok {
		return q, nil
	}

	q, err := r.factory(queueName)
	if err != nil {
		return nil, errors.StorageErr(fmt.Sprintf("open queue %q", queueName), err)
	}
	r.queues[queueName] = q
	return q, nil
}

// Publish enqueues an Envelope onto the named queue.
func (r *Router) Publish(ctx context.Context, queueName string, env *Envelope) error {
	q, err := r.Queue(queueName)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, env.ToJob())
}

// Depth reports the current depth of the named queue.
func (r *Router) Depth(ctx context.Context, queueName string) (int, error) {
	q, err := r.Queue(queueName)
	if err != nil {
		return 0, err
	}
	return q.GetDepth(ctx)
}

// Close shuts down every queue this router has opened.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, q := range r.queues {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close queue %q: %w", name, err)
		}
	}
	r.queues = make(map[string]queue.Queue)
	return firstErr
}
