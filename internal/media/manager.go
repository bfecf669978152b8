package media

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager keeps one playout per remote participant and remembers which
// participants are silenced locally.
type Manager struct {
	mu       sync.RWMutex
	playouts map[string]*Playout
	silenced map[string]bool
}

func NewManager() *Manager {
	return &Manager{
		playouts: make(map[string]*Playout),
		silenced: make(map[string]bool),
	}
}

// Start begins playing src for username into the given sinks, replacing
// any previous playout for that user.
func (m *Manager) Start(ctx context.Context, username string, src Source, sinks map[string]RTPWriter) *Playout {
	logger := log.With().
		Str("module", "playout").
		Str("peer", username).
		Logger()

	pctx, cancel := context.WithCancel(ctx)
	p := NewPlayout(src, cancel)

	m.mu.Lock()
	muted := m.silenced[username]
	for name, w := range sinks {
		s := NewSink(w)
		if muted {
			s.MarkMuted()
		}
		p.AddSink(name, s)
	}
	if old, ok := m.playouts[username]; ok {
		logger.Info().Msg("replacing existing playout")
		old.markAllDelete()
		old.cancel()
	}
	m.playouts[username] = p
	m.mu.Unlock()

	logger.Info().Int("sinks", len(sinks)).Bool("silenced", muted).Msg("starting playout loop")
	go p.loop(pctx, &logger)
	return p
}

// SetSilenced mutes or unmutes the local playout of username. The choice
// outlives the current playout.
func (m *Manager) SetSilenced(username string, silenced bool) {
	m.mu.Lock()
	if silenced {
		m.silenced[username] = true
	} else {
		delete(m.silenced, username)
	}
	p, ok := m.playouts[username]
	m.mu.Unlock()

	log.Info().Str("module", "playout").Str("peer", username).Bool("silenced", silenced).Msg("silence")
	if ok {
		p.setMuted(silenced)
	}
}

func (m *Manager) Silenced(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.silenced[username]
}

// Stop ends the playout of username, if any.
func (m *Manager) Stop(username string) {
	m.mu.Lock()
	p, ok := m.playouts[username]
	if ok {
		delete(m.playouts, username)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	p.markAllDelete()
	p.cancel()
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.playouts))
	for name := range m.playouts {
		names = append(names, name)
	}
	m.mu.Unlock()
	for _, name := range names {
		m.Stop(name)
	}
}

func (m *Manager) Has(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.playouts[username]
	return ok
}
