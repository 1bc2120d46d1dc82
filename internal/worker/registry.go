package worker

import (
	"slices"
	"sync"
	"time"
)

type entry struct {
	info Info
	impl Worker
}

// Registry tracks registered workers keyed by ID. Lookups skip inactive
// workers; records are never removed while the process runs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // registration order
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register upserts a worker record. Re-registering an existing ID replaces
// its type, capabilities and implementation, keeps the original
// registration time, and reactivates it. impl may be nil for workers that
// are tracked but executed elsewhere.
func (r *Registry) Register(info Info, impl Worker) Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.entries[info.ID]
	if !ok {
		e = &entry{}
		r.entries[info.ID] = e
		r.order = append(r.order, info.ID)
		info.RegisteredAt = now
	} else {
		info.RegisteredAt = e.info.RegisteredAt
	}
	info.LastSeen = now
	info.Active = true
	info.Capabilities = slices.Clone(info.Capabilities)

	e.info = info
	e.impl = impl
	return info
}

// Deregister marks a worker inactive. It returns false if the ID is unknown.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.info.Active = false
	return true
}

// Touch records activity for a worker.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.info.LastSeen = r.now()
	}
}

// Get returns the record for id, active or not.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return cloneInfo(e.info), true
}

// Impl returns the implementation registered for an active worker.
func (r *Registry) Impl(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !e.info.Active || e.impl == nil {
		return nil, false
	}
	return e.impl, true
}

// Find returns the first active worker of type t.
func (r *Registry) Find(t Type) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		e := r.entries[id]
		if e.info.Active && e.info.Type == t {
			return cloneInfo(e.info), true
		}
	}
	return Info{}, false
}

// ListByType returns active workers of type t in registration order.
func (r *Registry) ListByType(t Type) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Info
	for _, id := range r.order {
		e := r.entries[id]
		if e.info.Active && e.info.Type == t {
			out = append(out, cloneInfo(e.info))
		}
	}
	return out
}

// HasType reports whether at least one active worker of type t exists.
func (r *Registry) HasType(t Type) bool {
	_, ok := r.Find(t)
	return ok
}

// All returns every record, including inactive ones, in registration order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneInfo(r.entries[id].info))
	}
	return out
}

// ActiveCount returns the number of active workers.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.info.Active {
			n++
		}
	}
	return n
}

func cloneInfo(i Info) Info {
	i.Capabilities = slices.Clone(i.Capabilities)
	return i
}
