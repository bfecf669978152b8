package core

//go:generate mockgen -destination=mocks/transport_mock.go -package=mocks . Transport

import "github.com/dkeye/voicemesh/internal/domain"

// Frame is a raw encoded message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Handler consumes one inbound message of a registered kind.
type Handler func(msg domain.Message)

// Transport is the client-side view of the shared signaling channel.
// Send is best effort: when disconnected the message is logged and dropped.
type Transport interface {
	Send(msg domain.Message)
	IsConnected() bool
	// Handle registers fn for kind and returns a function that removes it.
	Handle(kind domain.Kind, fn Handler) (remove func())
}
