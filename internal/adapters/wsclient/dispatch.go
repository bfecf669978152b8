package wsclient

import (
	"sync"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

type entry struct {
	id uint64
	fn core.Handler
}

// Registry routes inbound messages by kind. Every handler registered for a
// kind receives it, in registration order. Kinds nobody registered for go
// to the default handlers instead.
type Registry struct {
	mu       sync.RWMutex
	next     uint64
	byKind   map[domain.Kind][]entry
	fallback []entry
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[domain.Kind][]entry)}
}

func (r *Registry) Handle(kind domain.Kind, fn core.Handler) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.byKind[kind] = append(r.byKind[kind], entry{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byKind[kind] = without(r.byKind[kind], id)
		if len(r.byKind[kind]) == 0 {
			delete(r.byKind, kind)
		}
	}
}

// HandleDefault registers fn for kinds without a dedicated handler.
func (r *Registry) HandleDefault(fn core.Handler) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.fallback = append(r.fallback, entry{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fallback = without(r.fallback, id)
	}
}

// Dispatch delivers msg and returns how many handlers received it.
func (r *Registry) Dispatch(msg domain.Message) int {
	r.mu.RLock()
	targets := r.byKind[msg.Type]
	if len(targets) == 0 {
		targets = r.fallback
	}
	snapshot := make([]entry, len(targets))
	copy(snapshot, targets)
	r.mu.RUnlock()

	for _, e := range snapshot {
		e.fn(msg)
	}
	return len(snapshot)
}

func without(entries []entry, id uint64) []entry {
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}
