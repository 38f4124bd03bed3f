// Package processor implements the worker-side handlers that turn a
// dequeued envelope into storage mutations and follow-up messages:
// ParallelProcessor and ChainProcessor.
package processor

import "github.com/gongahkia/batchqueue/internal/transport"

// envelopeKind classifies a delivered envelope before dispatching it
// to the normal job path, a callback job, or a no-op passthrough.
type envelopeKind int

const (
	kindPassthrough envelopeKind = iota
	kindNormal
	kindCallback
)

func classify(env *transport.Envelope) envelopeKind {
	if env.IsCallback {
		return kindCallback
	}
	if env.BatchID != "" {
		return kindNormal
	}
	return kindPassthrough
}
