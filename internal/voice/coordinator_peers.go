package voice

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

// initiates reports whether local opens the connection to remote: the
// lexicographically smaller username always offers, so two peers that see
// each other at the same time never both initiate.
func initiates(local, remote string) bool {
	return local < remote
}

func (c *Coordinator) handleVoiceState(msg domain.Message) {
	st := domain.VoiceStateOf(msg)
	name := st.Username
	if name == "" {
		c.logger.Debug().Msg("voice-state without username dropped")
		return
	}
	if name == c.session.Username {
		return
	}
	if c.session.InVoice && st.Roomname != c.session.Roomname {
		c.logger.Debug().Str("peer", name).Str("room", st.Roomname).Msg("voice-state for another room dropped")
		return
	}

	prev, known := c.remotes[name]
	wasInVoice := known && prev.InVoice && prev.Roomname == st.Roomname
	muteChanged := st.Muted != nil && (!known || prev.Muted != *st.Muted)

	if st.InVoice {
		next := RemoteState{Roomname: st.Roomname, InVoice: true, Muted: prev.Muted}
		if st.Muted != nil {
			next.Muted = *st.Muted
		}
		c.remotes[name] = next
		if !wasInVoice {
			c.notifier.Emit(EventJoined, JoinedEvent{Username: name, Local: false})
		}
		if c.session.InVoice {
			if _, exists := c.peers[name]; !exists {
				if initiates(c.session.Username, name) {
					c.connectTo(name)
				} else {
					// no session yet: the smaller peer may not know about us
					c.broadcastState()
				}
			}
		}
	} else {
		delete(c.remotes, name)
		_, hadSession := c.peers[name]
		c.removePeer(name)
		if wasInVoice || hadSession {
			c.notifier.Emit(EventLeft, LeftEvent{Username: name, Local: false})
		}
	}

	if muteChanged {
		c.notifier.Emit(EventMuted, MutedEvent{Username: name, Muted: *st.Muted, Local: false})
	}
}

// connectTo opens an initiator session with remote and sends the offer.
func (c *Coordinator) connectTo(remote string) {
	s, err := c.createSession(remote, RoleInitiator)
	if err != nil {
		c.emitError("connect "+remote, err)
		return
	}
	if err := s.AddLocalStream(c.session.capture); err != nil {
		c.failPeer(remote, err)
		return
	}
	offer, err := s.CreateOffer()
	if err != nil {
		c.failPeer(remote, err)
		return
	}
	c.transport.Send(domain.Message{
		Type:     domain.KindOffer,
		From:     c.session.Username,
		To:       remote,
		Roomname: c.session.Roomname,
		Offer:    &offer,
	})
	c.logger.Info().Str("peer", remote).Msg("offer sent")
}

// createSession registers a new session. A second session for the same
// remote is rejected, never replaced.
func (c *Coordinator) createSession(remote string, role Role) (*PeerSession, error) {
	if remote == "" || remote == c.session.Username {
		return nil, fmt.Errorf("%w: peer %q", ErrInvalidArgument, remote)
	}
	if _, exists := c.peers[remote]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeerSession, remote)
	}
	pc, err := c.newPC(remote)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %w", ErrNegotiation, err)
	}

	var s *PeerSession
	s = newPeerSession(remote, role, pc, c.exec.post, sessionObserver{
		onCandidate: func(ci webrtc.ICECandidateInit) { c.onLocalCandidate(s, ci) },
		onStream:    func(rs *core.RemoteStream) { c.onRemoteStream(s, rs) },
		onState:     func(st PeerState) { c.onSessionState(s, st) },
	})
	c.peers[remote] = s
	c.logger.Info().Str("peer", remote).Str("role", role.String()).Msg("peer session created")
	return s, nil
}

// current reports whether s is still the registered session for its
// remote; callbacks from removed sessions are stale.
func (c *Coordinator) current(s *PeerSession) bool {
	return s != nil && c.peers[s.Remote()] == s
}

func (c *Coordinator) onLocalCandidate(s *PeerSession, ci webrtc.ICECandidateInit) {
	if !c.current(s) {
		return
	}
	c.transport.Send(domain.Message{
		Type:      domain.KindICECandidate,
		From:      c.session.Username,
		To:        s.Remote(),
		Roomname:  c.session.Roomname,
		Candidate: &ci,
	})
}

func (c *Coordinator) onRemoteStream(s *PeerSession, rs *core.RemoteStream) {
	if !c.current(s) {
		return
	}
	c.notifier.Emit(EventStreamAdded, StreamAddedEvent{Username: s.Remote(), Stream: rs})
}

func (c *Coordinator) onSessionState(s *PeerSession, st PeerState) {
	if !c.current(s) {
		return
	}
	c.notifier.Emit(EventConnectionState, ConnectionStateEvent{Username: s.Remote(), State: st})
	if st.Terminal() {
		c.removePeer(s.Remote())
	}
}

// failPeer contains a per-peer failure: report it and drop that peer only.
func (c *Coordinator) failPeer(remote string, err error) {
	c.emitError("peer "+remote, err)
	c.removePeer(remote)
}

func (c *Coordinator) removePeer(username string) {
	s, ok := c.peers[username]
	if !ok {
		return
	}
	delete(c.peers, username)
	delete(c.early, username)
	c.ended[username] = true
	hadStream := s.RemoteStream() != nil
	s.Close()
	c.logger.Info().Str("peer", username).Bool("had_stream", hadStream).Msg("peer removed")
	if hadStream {
		c.notifier.Emit(EventStreamRemoved, StreamRemovedEvent{Username: username})
	}
}
