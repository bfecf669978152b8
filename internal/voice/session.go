package voice

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
)

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type PeerState string

const (
	StateNew                   PeerState = "new"
	StateOffering              PeerState = "offering"
	StateAwaitingOffer         PeerState = "awaiting-offer"
	StateHaveRemoteDescription PeerState = "have-remote-description"
	StateConnected             PeerState = "connected"
	StateFailed                PeerState = "failed"
	StateClosed                PeerState = "closed"
)

func (s PeerState) Terminal() bool {
	return s == StateFailed || s == StateClosed
}

// sessionObserver receives a session's callbacks. They always run on the
// coordinator's executor, never on the primitive's goroutines.
type sessionObserver struct {
	onCandidate func(webrtc.ICECandidateInit)
	onStream    func(*core.RemoteStream)
	onState     func(PeerState)
}

// PeerSession drives one offer/answer handshake with a single remote
// participant. It is not safe for concurrent use; the coordinator calls it
// from its executor only.
type PeerSession struct {
	remote string
	role   Role
	state  PeerState
	pc     core.PeerConnection

	pending       []webrtc.ICECandidateInit
	remoteApplied bool
	offerCreated  bool
	answerCreated bool
	localAttached bool
	stream        *core.RemoteStream
	closed        bool

	observer sessionObserver
	logger   zerolog.Logger
}

func newPeerSession(remote string, role Role, pc core.PeerConnection, post func(func()), observer sessionObserver) *PeerSession {
	s := &PeerSession{
		remote:   remote,
		role:     role,
		state:    StateNew,
		pc:       pc,
		observer: observer,
		logger: log.With().
			Str("module", "voice.session").
			Str("peer", remote).
			Str("role", role.String()).
			Logger(),
	}

	pc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		post(func() {
			if s.closed || s.observer.onCandidate == nil {
				return
			}
			s.observer.onCandidate(ci)
		})
	})
	pc.OnRemoteStream(func(rs core.RemoteStream) {
		post(func() { s.handleRemoteStream(rs) })
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		post(func() { s.handleConnectionState(st) })
	})

	if role == RoleInitiator {
		s.state = StateOffering
	} else {
		s.state = StateAwaitingOffer
	}
	return s
}

func (s *PeerSession) Remote() string { return s.remote }
func (s *PeerSession) Role() Role     { return s.role }
func (s *PeerSession) State() PeerState {
	return s.state
}

// PendingCandidates is the number of remote candidates waiting for the
// remote description.
func (s *PeerSession) PendingCandidates() int { return len(s.pending) }

func (s *PeerSession) RemoteStream() *core.RemoteStream { return s.stream }

func negotiationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNegotiation, fmt.Sprintf(format, args...))
}

// AddLocalStream attaches the shared capture as the outbound track. The
// session never stops or toggles the capture.
func (s *PeerSession) AddLocalStream(capture core.LocalCapture) error {
	if s.closed {
		return negotiationErr("session closed")
	}
	if s.localAttached {
		return negotiationErr("local stream already attached")
	}
	if s.offerCreated || s.remoteApplied {
		return negotiationErr("negotiation already started")
	}
	if err := s.pc.AddLocalTrack(capture.Track()); err != nil {
		return fmt.Errorf("%w: add local track: %w", ErrNegotiation, err)
	}
	s.localAttached = true
	return nil
}

func (s *PeerSession) CreateOffer() (webrtc.SessionDescription, error) {
	if s.role != RoleInitiator {
		return webrtc.SessionDescription{}, negotiationErr("responder cannot create an offer")
	}
	if s.state != StateNew && s.state != StateOffering {
		return webrtc.SessionDescription{}, negotiationErr("create offer in state %s", s.state)
	}
	offer, err := s.pc.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %w", ErrNegotiation, err)
	}
	s.offerCreated = true
	s.state = StateOffering
	s.logger.Debug().Msg("offer created")
	return offer, nil
}

func (s *PeerSession) HandleOffer(offer webrtc.SessionDescription) error {
	if s.role != RoleResponder {
		return negotiationErr("initiator cannot accept an offer")
	}
	if s.state != StateNew && s.state != StateAwaitingOffer {
		return negotiationErr("offer in state %s", s.state)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return negotiationErr("malformed offer")
	}
	return s.applyRemote(offer)
}

func (s *PeerSession) CreateAnswer() (webrtc.SessionDescription, error) {
	if s.role != RoleResponder {
		return webrtc.SessionDescription{}, negotiationErr("initiator cannot create an answer")
	}
	if !s.remoteApplied || s.answerCreated || s.state.Terminal() {
		return webrtc.SessionDescription{}, negotiationErr("create answer in state %s", s.state)
	}
	answer, err := s.pc.CreateAnswer()
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %w", ErrNegotiation, err)
	}
	s.answerCreated = true
	s.logger.Debug().Msg("answer created")
	return answer, nil
}

func (s *PeerSession) HandleAnswer(answer webrtc.SessionDescription) error {
	if s.role != RoleInitiator {
		return negotiationErr("responder cannot accept an answer")
	}
	if s.state != StateOffering || !s.offerCreated {
		return negotiationErr("answer in state %s", s.state)
	}
	if answer.Type != webrtc.SDPTypeAnswer || answer.SDP == "" {
		return negotiationErr("malformed answer")
	}
	return s.applyRemote(answer)
}

func (s *PeerSession) applyRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote %s: %w", ErrNegotiation, desc.Type, err)
	}
	s.remoteApplied = true
	s.state = StateHaveRemoteDescription
	s.logger.Debug().Str("sdp_type", desc.Type.String()).Int("pending", len(s.pending)).Msg("remote description applied")
	return s.flushPending()
}

// AddICECandidate applies ci, or buffers it until the remote description
// is set.
func (s *PeerSession) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if s.closed || s.state.Terminal() {
		return negotiationErr("candidate in state %s", s.state)
	}
	if !s.remoteApplied {
		s.pending = append(s.pending, ci)
		s.logger.Debug().Int("pending", len(s.pending)).Msg("candidate buffered")
		return nil
	}
	if err := s.pc.AddICECandidate(ci); err != nil {
		return fmt.Errorf("%w: add candidate: %w", ErrNegotiation, err)
	}
	return nil
}

func (s *PeerSession) flushPending() error {
	pending := s.pending
	s.pending = nil
	for i, ci := range pending {
		if err := s.pc.AddICECandidate(ci); err != nil {
			return fmt.Errorf("%w: buffered candidate %d: %w", ErrNegotiation, i, err)
		}
	}
	return nil
}

func (s *PeerSession) handleRemoteStream(rs core.RemoteStream) {
	if s.closed {
		return
	}
	if s.stream != nil {
		s.logger.Debug().Str("stream_id", rs.ID).Msg("extra remote stream ignored")
		return
	}
	s.stream = &rs
	s.logger.Info().Str("stream_id", rs.ID).Msg("remote stream available")
	if s.observer.onStream != nil {
		s.observer.onStream(s.stream)
	}
}

func (s *PeerSession) handleConnectionState(st webrtc.PeerConnectionState) {
	if s.closed || s.state.Terminal() {
		return
	}
	s.logger.Info().Str("peer_connection_state", st.String()).Msg("peer state")

	var next PeerState
	switch st {
	case webrtc.PeerConnectionStateConnected:
		next = StateConnected
	case webrtc.PeerConnectionStateFailed:
		next = StateFailed
	case webrtc.PeerConnectionStateClosed:
		next = StateClosed
	default:
		return
	}
	if next == s.state {
		return
	}
	s.state = next
	if s.observer.onState != nil {
		s.observer.onState(next)
	}
}

// Close releases the primitive and drops buffered candidates and the
// remote stream. Safe to call repeatedly.
func (s *PeerSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.state = StateClosed
	s.pending = nil
	s.stream = nil
	if err := s.pc.Close(); err != nil {
		s.logger.Error().Err(err).Msg("close error")
		return
	}
	s.logger.Info().Msg("closed")
}
