// Package voice coordinates a full-mesh voice session: one direct peer
// connection to every other participant in the room.
package voice

import (
	"context"
	"fmt"
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
	"github.com/dkeye/voicemesh/internal/events"
)

// VoiceSession is the local participant's state.
type VoiceSession struct {
	Username string
	Roomname string
	InVoice  bool
	Muted    bool

	capture core.LocalCapture
}

// RemoteState is the last voice state gossiped by a remote participant.
type RemoteState struct {
	Roomname string
	InVoice  bool
	Muted    bool
}

type Options struct {
	Transport         core.Transport
	Captures          core.CaptureProvider
	NewPeerConnection core.PeerConnectionFactory
	// Notifier is created when nil. An injected notifier is shared: Destroy
	// leaves its other subscriptions alone.
	Notifier *events.Notifier
}

// Coordinator owns the local voice session and the registry of peer
// sessions. All of its state is touched from a single serial executor;
// inbound messages and primitive callbacks are queued onto it.
//
// Event handlers run on the executor, so they must not call the blocking
// methods (JoinVoice, LeaveVoice, ToggleMute, RemovePeer, Participants,
// Session, Destroy).
type Coordinator struct {
	transport core.Transport
	captures  core.CaptureProvider
	newPC     core.PeerConnectionFactory
	notifier  *events.Notifier

	// ownsNotifier is set when the notifier was created here.
	ownsNotifier bool

	exec    serial
	session VoiceSession
	peers   map[string]*PeerSession
	remotes map[string]RemoteState

	// early holds candidates that arrived before the offer of their peer.
	early map[string][]webrtc.ICECandidateInit

	// ended remembers peers whose session was removed; their late
	// candidates must not seed a new session.
	ended map[string]bool

	offs      []func()
	destroyed bool
	logger    zerolog.Logger
}

func NewCoordinator(opts Options) *Coordinator {
	n, owns := opts.Notifier, false
	if n == nil {
		n, owns = events.NewNotifier(), true
	}
	c := &Coordinator{
		transport:    opts.Transport,
		captures:     opts.Captures,
		newPC:        opts.NewPeerConnection,
		notifier:     n,
		ownsNotifier: owns,
		peers:        make(map[string]*PeerSession),
		remotes:      make(map[string]RemoteState),
		early:        make(map[string][]webrtc.ICECandidateInit),
		ended:        make(map[string]bool),
		logger:       log.With().Str("module", "voice").Logger(),
	}
	c.offs = append(c.offs,
		c.transport.Handle(domain.KindVoiceState, c.HandleVoiceState),
		c.transport.Handle(domain.KindOffer, c.HandleSignalingMessage),
		c.transport.Handle(domain.KindAnswer, c.HandleSignalingMessage),
		c.transport.Handle(domain.KindICECandidate, c.HandleSignalingMessage),
	)
	return c
}

func (c *Coordinator) Events() *events.Notifier { return c.notifier }

func (c *Coordinator) JoinVoice(ctx context.Context, username, roomname string) error {
	var err error
	c.exec.wait(func() { err = c.joinVoice(ctx, username, roomname) })
	return err
}

// LeaveVoice is a no-op when not in voice.
func (c *Coordinator) LeaveVoice() {
	c.exec.wait(c.leaveVoice)
}

// ToggleMute flips the mute flag and returns the new value. Outside voice
// it returns the current flag and changes nothing.
func (c *Coordinator) ToggleMute() bool {
	var muted bool
	c.exec.wait(func() { muted = c.toggleMute() })
	return muted
}

// RemovePeer tears down the session with username, if any.
func (c *Coordinator) RemovePeer(username string) {
	c.exec.wait(func() { c.removePeer(username) })
}

// Participants returns the local username first (when in voice) followed
// by every registered remote.
func (c *Coordinator) Participants() []string {
	var out []string
	c.exec.wait(func() { out = c.participants() })
	return out
}

// Session returns a copy of the local voice session.
func (c *Coordinator) Session() VoiceSession {
	var s VoiceSession
	c.exec.wait(func() {
		s = c.session
		s.capture = nil
	})
	return s
}

// Peer returns the state of the session with username.
func (c *Coordinator) Peer(username string) (PeerState, bool) {
	var (
		st PeerState
		ok bool
	)
	c.exec.wait(func() {
		if s, found := c.peers[username]; found {
			st, ok = s.State(), true
		}
	})
	return st, ok
}

func (c *Coordinator) RemoteState(username string) (RemoteState, bool) {
	var (
		rs RemoteState
		ok bool
	)
	c.exec.wait(func() { rs, ok = c.remotes[username] })
	return rs, ok
}

// Destroy leaves voice and releases the transport handlers. Event
// subscriptions are cleared only when the coordinator created its notifier.
func (c *Coordinator) Destroy() {
	c.exec.wait(func() {
		if c.destroyed {
			return
		}
		c.leaveVoice()
		for _, off := range c.offs {
			if off != nil {
				off()
			}
		}
		c.offs = nil
		if c.ownsNotifier {
			c.notifier.Clear()
		}
		c.destroyed = true
		c.logger.Info().Msg("coordinator destroyed")
	})
}

// HandleVoiceState queues an inbound voice-state message.
func (c *Coordinator) HandleVoiceState(msg domain.Message) {
	c.exec.post(func() { c.handleVoiceState(msg) })
}

// HandleSignalingMessage queues an inbound offer, answer or candidate.
func (c *Coordinator) HandleSignalingMessage(msg domain.Message) {
	c.exec.post(func() { c.handleSignalingMessage(msg) })
}

func (c *Coordinator) joinVoice(ctx context.Context, username, roomname string) error {
	if c.destroyed {
		c.logger.Warn().Str("username", username).Str("room", roomname).Msg("join voice after destroy")
		return fmt.Errorf("%w: %w", ErrInvalidArgument, ErrDestroyed)
	}
	if username == "" || roomname == "" {
		err := fmt.Errorf("%w: username and roomname are required", ErrInvalidArgument)
		c.emitError("join voice", err)
		return err
	}
	if c.session.InVoice {
		return ErrAlreadyInVoice
	}

	capture, err := c.captures.Acquire(ctx, core.VoiceConstraints)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMediaAccessDenied, err)
		c.emitError("join voice", err)
		return err
	}
	capture.SetEnabled(true)

	c.session = VoiceSession{
		Username: username,
		Roomname: roomname,
		InVoice:  true,
		capture:  capture,
	}
	// the local user never appears in its own registry
	delete(c.remotes, username)
	for name, rs := range c.remotes {
		if rs.Roomname != roomname {
			delete(c.remotes, name)
		}
	}
	clear(c.early)
	clear(c.ended)

	c.logger.Info().Str("username", username).Str("room", roomname).Msg("joined voice")
	c.broadcastState()
	c.notifier.Emit(EventJoined, JoinedEvent{Username: username, Local: true})

	// peers already known to be in voice here get an offer now instead of
	// waiting for their next announcement
	for _, name := range c.remoteNames() {
		if rs := c.remotes[name]; rs.InVoice && initiates(username, name) {
			c.connectTo(name)
		}
	}
	return nil
}

func (c *Coordinator) leaveVoice() {
	if !c.session.InVoice {
		return
	}
	for _, name := range c.peerNames() {
		c.removePeer(name)
	}
	if c.session.capture != nil {
		c.session.capture.Stop()
	}

	left := c.session
	c.session = VoiceSession{}
	clear(c.early)
	clear(c.ended)

	c.transport.Send(domain.VoiceState{
		Username: left.Username,
		Roomname: left.Roomname,
		InVoice:  false,
		Muted:    domain.Bool(false),
	}.Message())
	c.logger.Info().Str("username", left.Username).Str("room", left.Roomname).Msg("left voice")
	c.notifier.Emit(EventLeft, LeftEvent{Username: left.Username, Local: true})
}

func (c *Coordinator) toggleMute() bool {
	if !c.session.InVoice {
		return c.session.Muted
	}
	c.session.Muted = !c.session.Muted
	c.session.capture.SetEnabled(!c.session.Muted)
	c.broadcastState()
	c.notifier.Emit(EventMuted, MutedEvent{Username: c.session.Username, Muted: c.session.Muted, Local: true})
	return c.session.Muted
}

func (c *Coordinator) broadcastState() {
	c.transport.Send(domain.VoiceState{
		Username: c.session.Username,
		Roomname: c.session.Roomname,
		InVoice:  c.session.InVoice,
		Muted:    domain.Bool(c.session.Muted),
	}.Message())
}

func (c *Coordinator) participants() []string {
	out := make([]string, 0, len(c.peers)+1)
	if c.session.InVoice {
		out = append(out, c.session.Username)
	}
	return append(out, c.peerNames()...)
}

func (c *Coordinator) peerNames() []string {
	names := make([]string, 0, len(c.peers))
	for name := range c.peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) remoteNames() []string {
	names := make([]string, 0, len(c.remotes))
	for name := range c.remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) emitError(what string, err error) {
	c.logger.Warn().Err(err).Msg(what)
	c.notifier.Emit(EventError, ErrorEvent{Message: fmt.Sprintf("%s: %v", what, err), Cause: err})
}
