package core

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ErrCaptureDenied is returned by a CaptureProvider when the audio source
// refuses access.
var ErrCaptureDenied = errors.New("capture access denied")

// AudioConstraints describes the requested microphone processing.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VoiceConstraints is the fixed microphone-only capture configuration.
var VoiceConstraints = AudioConstraints{
	EchoCancellation: true,
	NoiseSuppression: true,
	AutoGainControl:  true,
}

// LocalCapture is an acquired outbound audio source. It is shared by every
// peer connection; only its owner may toggle or stop it.
type LocalCapture interface {
	Track() webrtc.TrackLocal
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
}

type CaptureProvider interface {
	Acquire(ctx context.Context, c AudioConstraints) (LocalCapture, error)
}

// RemoteStream is the inbound media of one remote participant.
// Track is nil for connections that carry no real media (tests).
type RemoteStream struct {
	ID    string
	Track *webrtc.TrackRemote
}

// PeerConnection is the point-to-point media primitive a voice session drives.
type PeerConnection interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack attaches an outbound track.
	AddLocalTrack(track webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRemoteStream sets a callback invoked when remote media arrives.
	OnRemoteStream(func(RemoteStream))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// Close should stop all underlying media resources.
	Close() error
}

// PeerConnectionFactory builds a primitive for the given remote participant.
type PeerConnectionFactory func(remote string) (PeerConnection, error)
