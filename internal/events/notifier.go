// Package events is a process-wide named publish/subscribe hub.
//
// Delivery is synchronous and in registration order. There is no
// persistence: an event emitted before a handler subscribes is never
// replayed to it.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type Handler func(payload any)

type subscription struct {
	id uint64
	fn Handler
}

type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string][]subscription)}
}

// On subscribes fn to name. The returned function removes exactly this
// subscription and is safe to call more than once.
func (n *Notifier) On(name string, fn Handler) (off func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[name] = append(n.subs[name], subscription{id: id, fn: fn})
	n.mu.Unlock()

	return func() { n.remove(name, id) }
}

func (n *Notifier) remove(name string, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	list := n.subs[name]
	for i, s := range list {
		if s.id == id {
			n.subs[name] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(n.subs[name]) == 0 {
		delete(n.subs, name)
	}
}

// Emit calls every current subscriber of name. Handlers run outside the
// lock, so they may subscribe or unsubscribe while being notified.
func (n *Notifier) Emit(name string, payload any) {
	n.mu.RLock()
	list := n.subs[name]
	snapshot := make([]subscription, len(list))
	copy(snapshot, list)
	n.mu.RUnlock()

	log.Debug().Str("module", "events").Str("event", name).Int("subscribers", len(snapshot)).Msg("emit")
	for _, s := range snapshot {
		s.fn(payload)
	}
}

// Clear drops every subscription.
func (n *Notifier) Clear() {
	n.mu.Lock()
	n.subs = make(map[string][]subscription)
	n.mu.Unlock()
}

func (n *Notifier) Count(name string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[name])
}

// Scope groups subscriptions so a component can drop all of its own
// handlers at teardown without touching anyone else's.
type Scope struct {
	n    *Notifier
	mu   sync.Mutex
	offs []func()
}

func (n *Notifier) Scope() *Scope {
	return &Scope{n: n}
}

func (s *Scope) On(name string, fn Handler) {
	off := s.n.On(name, fn)
	s.mu.Lock()
	s.offs = append(s.offs, off)
	s.mu.Unlock()
}

func (s *Scope) Close() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
