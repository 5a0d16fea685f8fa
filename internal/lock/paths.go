// Package lock serializes operations on the same union path: a mutex
// registry keyed by canonical path, shared by the whole dispatcher, so
// a promotion and a concurrent unlink of one path never interleave
// their branch mutations.
package lock

import (
	"sync"

	"github.com/google/uuid"
)

// entry is a refcounted mutex for one canonical path. Entries are
// removed from the registry once their refcount drops to zero so the
// map does not grow unbounded across a long-lived mount.
type entry struct {
	mu       sync.Mutex
	refCount int
}

// Registry is a process-wide table of per-path mutexes.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for path, blocking until it is free, and
// returns an opaque token plus an unlock function. The token is a fresh
// uuid used only to correlate a promotion's debug-log lines (see
// internal/debuglog).
func (r *Registry) Lock(path string) (token string, unlock func()) {
	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		e = &entry{}
		r.entries[path] = e
	}
	e.refCount++
	r.mu.Unlock()

	e.mu.Lock()

	token = uuid.NewString()
	unlock = func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refCount--
		if e.refCount == 0 {
			delete(r.entries, path)
		}
		r.mu.Unlock()
	}
	return token, unlock
}

// WithLock runs fn while holding path's mutex.
func (r *Registry) WithLock(path string, fn func(token string) error) error {
	token, unlock := r.Lock(path)
	defer unlock()
	return fn(token)
}
