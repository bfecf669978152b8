package voice

import "github.com/dkeye/voicemesh/internal/core"

const (
	EventJoined          = "voice:joined"
	EventLeft            = "voice:left"
	EventMuted           = "voice:muted"
	EventStreamAdded     = "voice:stream-added"
	EventStreamRemoved   = "voice:stream-removed"
	EventConnectionState = "voice:connection-state"
	EventError           = "voice:error"
)

type JoinedEvent struct {
	Username string
	Local    bool
}

type LeftEvent struct {
	Username string
	Local    bool
}

type MutedEvent struct {
	Username string
	Muted    bool
	Local    bool
}

type StreamAddedEvent struct {
	Username string
	Stream   *core.RemoteStream
}

type StreamRemovedEvent struct {
	Username string
}

type ConnectionStateEvent struct {
	Username string
	State    PeerState
}

type ErrorEvent struct {
	Message string
	Cause   error
}
