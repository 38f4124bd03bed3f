// Package registry resolves the class name strings that travel through
// queue envelopes into concrete jobapi.Job constructors. This is the
// seam that keeps the queue envelope language-agnostic:
// the core never imports user job code, it only ever holds a string.
package registry

import (
	"fmt"
	"os"
	"sync"

	"github.com/gobeam/stringy"
	"gopkg.in/yaml.v3"

	"github.com/gongahkia/batchqueue/pkg/errors"
	"github.com/gongahkia/batchqueue/pkg/jobapi"
)

// Registry is a concurrency-safe class name -> constructor map.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]jobapi.Constructor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{constructors: make(map[string]jobapi.Constructor)}
}

// Register binds a class name to a constructor. Re-registering the
// same name overwrites the previous binding, which is convenient for
// tests that swap in fakes.
func (r *Registry) Register(class string, ctor jobapi.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[canonicalClassName(class)] = ctor
}

// Has reports whether class is registered.
func (r *Registry) Has(class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[canonicalClassName(class)]
	return ok
}

// New instantiates the job registered under class. Returns
// errors.ErrUnknownClass if nothing is registered.
func (r *Registry) New(class string) (jobapi.Job, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[canonicalClassName(class)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.InvalidJob(fmt.Sprintf("unknown class %q", class), errors.ErrUnknownClass)
	}
	return ctor(), nil
}

// ClassNames lists every registered class, for the admin CLI's
// `registry list` command.
func (r *Registry) ClassNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	return names
}

// canonicalClassName normalizes a class name so that "SendEmail",
// "send-email" and "send_email" all resolve to the same registration.
// Job classes travel as opaque strings through queue payloads written
// by different language-side callers; a consistent canonical form
// avoids class-name drift causing spurious ErrUnknownClass.
func canonicalClassName(class string) string {
	return stringy.New(class).SnakeCase().ToLower()
}

// SeedFile describes the on-disk shape of a registry seed: a mapping
// from class name to a human-readable tag, used only for operator
// introspection (the admin CLI lists what *should* be registered by
// the worker binary; the actual constructors are wired in Go code at
// startup, never loaded dynamically from YAML).
type SeedFile struct {
	Classes map[string]string `yaml:"classes"`
}

// LoadSeedFile reads a classes.yaml describing the expected registry
// contents, for `batchqueue-admin registry diff`.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}
