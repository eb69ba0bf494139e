// Package handle maps small integer handles to live resources.
package handle

import (
	"sort"
	"sync"
)

// ID is an opaque handle. It carries no information besides identity.
type ID = int

// Invalid is returned when allocation is impossible.
const Invalid ID = -1

// EventKind describes a registry change.
type EventKind int

const (
	Allocated EventKind = iota
	Released
)

func (k EventKind) String() string {
	if k == Allocated {
		return "allocated"
	}
	return "released"
}

// Observer is notified after every allocation and release.
type Observer func(kind EventKind, id ID)

// Registry owns resources of one kind between Allocate and Release.
// All methods are safe for concurrent use.
type Registry[T any] struct {
	mu        sync.Mutex
	entries   map[ID]T
	closed    bool
	observers []Observer
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[ID]T)}
}

// Subscribe registers an observer.
func (r *Registry[T]) Subscribe(o Observer) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Allocate stores v under the smallest free handle.
func (r *Registry[T]) Allocate(v T) ID {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Invalid
	}
	id := 0
	for {
		if _, taken := r.entries[id]; !taken {
			break
		}
		id++
	}
	r.entries[id] = v
	obs := r.observers
	r.mu.Unlock()

	notify(obs, Allocated, id)
	return id
}

// Get returns the resource for id.
func (r *Registry[T]) Get(id ID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[id]
	return v, ok
}

// With runs fn on the resource while holding the registry lock.
// It reports whether id was live; fn is not called otherwise.
func (r *Registry[T]) With(id ID, fn func(T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[id]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Release removes id and returns the resource it held.
// Releasing an unknown or already released handle is a no-op.
func (r *Registry[T]) Release(id ID) (T, bool) {
	r.mu.Lock()
	v, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	obs := r.observers
	r.mu.Unlock()

	if ok {
		notify(obs, Released, id)
	}
	return v, ok
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the live handles in ascending order.
func (r *Registry[T]) IDs() []ID {
	r.mu.Lock()
	ids := make([]ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Ints(ids)
	return ids
}

// Close releases every resource and refuses further allocations.
// The released resources are returned in handle order.
func (r *Registry[T]) Close() []T {
	ids := r.IDs()
	r.mu.Lock()
	r.closed = true
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.entries[id]; ok {
			out = append(out, v)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()
	return out
}

func notify(obs []Observer, kind EventKind, id ID) {
	for _, o := range obs {
		o(kind, id)
	}
}
