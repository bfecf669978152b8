package voice

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// serial runs posted tasks one at a time in FIFO order. Whichever
// goroutine finds the executor idle drains the queue; everyone else just
// enqueues. Tasks must not call wait.
type serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (s *serial) post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.run(next)
		s.mu.Lock()
	}
	s.running = false
	s.mu.Unlock()
}

// wait posts fn and blocks until it has run.
func (s *serial) wait(fn func()) {
	done := make(chan struct{})
	s.post(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (s *serial) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "voice.executor").Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}
