package core

import "github.com/dkeye/voicemesh/internal/domain"

type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
	// Voice is the last voice state the member announced.
	Voice() (inVoice, muted bool)
	SetVoice(inVoice, muted bool)
}
