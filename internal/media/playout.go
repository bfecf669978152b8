// Package media plays remote voice streams out to local sinks.
package media

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Source yields RTP packets of one remote stream. *webrtc.TrackRemote
// satisfies it.
type Source interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Playout copies one remote stream to its sinks.
type Playout struct {
	Src Source

	mu    sync.RWMutex
	sinks map[string]*Sink

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayout(src Source, cancel context.CancelFunc) *Playout {
	return &Playout{
		Src:    src,
		sinks:  make(map[string]*Sink),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed when the read loop has exited.
func (p *Playout) Done() <-chan struct{} { return p.done }

func (p *Playout) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("playout ctx done, marking all sinks for delete")
			p.markAllDelete()
			return
		default:
		}
		pkt, _, err := p.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("playout source ended")
			p.markAllDelete()
			return
		}
		p.forward(pkt, logger)
	}
}

func (p *Playout) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	p.mu.RLock()
	snapshot := make(map[string]*Sink, len(p.sinks))
	maps.Copy(snapshot, p.sinks)
	p.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for name, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.W.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("sink", name).
					Msg("playout write RTP error, marking sink as delete")
				s.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}

	if len(dirty) > 0 {
		p.cleanupDeleted(dirty)
	}
}

func (p *Playout) cleanupDeleted(dirty []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range dirty {
		delete(p.sinks, name)
	}
}

func (p *Playout) markAllDelete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sinks {
		s.MarkDelete()
	}
}

func (p *Playout) AddSink(name string, s *Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if old, ok := p.sinks[name]; ok {
		old.MarkDelete()
	}
	p.sinks[name] = s
}

func (p *Playout) setMuted(muted bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sinks {
		if muted {
			s.MarkMuted()
		} else {
			s.MarkOk()
		}
	}
}

func (p *Playout) sinkCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sinks)
}
