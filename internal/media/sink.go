package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// RTPWriter consumes forwarded packets. *webrtc.TrackLocalStaticRTP and
// UDPSink both satisfy it.
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
}

// Sink is one playout destination for a remote stream.
type Sink struct {
	W     RTPWriter
	state atomic.Int32 // zero is SinkStateOk
}

func NewSink(w RTPWriter) *Sink {
	return &Sink{W: w}
}

func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

func (s *Sink) MarkOk() {
	s.state.CompareAndSwap(int32(SinkStateMuted), int32(SinkStateOk))
}

func (s *Sink) MarkMuted() {
	s.state.CompareAndSwap(int32(SinkStateOk), int32(SinkStateMuted))
}

// MarkDelete is final: a deleted sink never becomes ok or muted again.
func (s *Sink) MarkDelete() {
	s.state.Store(int32(SinkStateDelete))
}
