// Package jobapi defines the capability interfaces user-supplied job
// classes implement. The queue envelope only ever carries a class name
// string plus an argument map, so the registry (internal/registry)
// resolves a class name to a constructor of one of these interfaces at
// dispatch time; the core never imports user code directly.
package jobapi

import "context"

// Job is the minimum capability every registered class must provide.
type Job interface {
	Execute(ctx context.Context, args map[string]interface{}) error
}

// ContextAware is implemented by jobs that read and mutate a chain's
// shared context. ChainProcessor calls SetContext before Execute and
// reads GetContext after, persisting it onto the batch only if it
// changed.
type ContextAware interface {
	Job
	SetContext(ctx map[string]interface{})
	GetContext() map[string]interface{}
}

// ResultAware is implemented by jobs that want their return value
// recorded onto the BatchJob row and surfaced via getBatchResults.
type ResultAware interface {
	Job
	Result() map[string]interface{}
}

// Constructor builds a fresh instance of a registered job class. A
// fresh instance per delivery keeps ContextAware/ResultAware state from
// leaking across retries run by different goroutines.
type Constructor func() Job
