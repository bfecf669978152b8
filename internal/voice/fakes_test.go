package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/core/mocks"
	"github.com/dkeye/voicemesh/internal/domain"
)

var errNoRemoteDescription = errors.New("remote description not set")

// fakePC models the ordering rules of a real peer connection without any
// network: candidates are rejected until a remote description is set.
type fakePC struct {
	remote string

	offers, answers int
	remoteDesc      *webrtc.SessionDescription
	candidates      []webrtc.ICECandidateInit
	tracks          []webrtc.TrackLocal
	closed          int

	failSetRemote error

	onICE    func(webrtc.ICECandidateInit)
	onStream func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
}

func (p *fakePC) CreateOffer() (webrtc.SessionDescription, error) {
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + p.remote}, nil
}

func (p *fakePC) CreateAnswer() (webrtc.SessionDescription, error) {
	if p.remoteDesc == nil {
		return webrtc.SessionDescription{}, errNoRemoteDescription
	}
	p.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + p.remote}, nil
}

func (p *fakePC) SetRemoteDescription(d webrtc.SessionDescription) error {
	if p.failSetRemote != nil {
		return p.failSetRemote
	}
	p.remoteDesc = &d
	return nil
}

func (p *fakePC) AddICECandidate(ci webrtc.ICECandidateInit) error {
	if p.remoteDesc == nil {
		return errNoRemoteDescription
	}
	p.candidates = append(p.candidates, ci)
	return nil
}

func (p *fakePC) AddLocalTrack(track webrtc.TrackLocal) error {
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePC) OnICECandidate(fn func(webrtc.ICECandidateInit)) { p.onICE = fn }
func (p *fakePC) OnRemoteStream(fn func(core.RemoteStream)) { p.onStream = fn }
func (p *fakePC) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) { p.onState = fn }

func (p *fakePC) Close() error {
	p.closed++
	return nil
}

type fakeCapture struct {
	track   webrtc.TrackLocal
	enabled bool
	stopped int
}

func (c *fakeCapture) Track() webrtc.TrackLocal { return c.track }
func (c *fakeCapture) SetEnabled(enabled bool)  { c.enabled = enabled }
func (c *fakeCapture) Enabled() bool            { return c.enabled }
func (c *fakeCapture) Stop()                    { c.stopped++ }

type fakeCaptures struct {
	t        *testing.T
	err      error
	acquired []*fakeCapture
}

func (f *fakeCaptures) Acquire(_ context.Context, c core.AudioConstraints) (core.LocalCapture, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c != core.VoiceConstraints {
		f.t.Errorf("constraints = %+v, want fixed voice constraints", c)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "local")
	if err != nil {
		f.t.Fatalf("NewTrackLocalStaticRTP: %v", err)
	}
	capture := &fakeCapture{track: track}
	f.acquired = append(f.acquired, capture)
	return capture, nil
}

func (f *fakeCaptures) last() *fakeCapture {
	if len(f.acquired) == 0 {
		return nil
	}
	return f.acquired[len(f.acquired)-1]
}

type recordedEvent struct {
	name    string
	payload any
}

var allEvents = []string{
	EventJoined, EventLeft, EventMuted, EventStreamAdded,
	EventStreamRemoved, EventConnectionState, EventError,
}

// harness is one coordinator wired to a gomock transport, fake captures and
// fake peer connections.
type harness struct {
	t        *testing.T
	c        *Coordinator
	sent     []domain.Message
	pcs      map[string]*fakePC
	captures *fakeCaptures
	events   []recordedEvent
	offs     int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)

	h := &harness{
		t:        t,
		pcs:      make(map[string]*fakePC),
		captures: &fakeCaptures{t: t},
	}
	tr.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(func() { h.offs++ }).Times(4)
	tr.EXPECT().Send(gomock.Any()).Do(func(m domain.Message) { h.sent = append(h.sent, m) }).AnyTimes()
	tr.EXPECT().IsConnected().Return(true).AnyTimes()

	h.c = NewCoordinator(Options{
		Transport: tr,
		Captures:  h.captures,
		NewPeerConnection: func(remote string) (core.PeerConnection, error) {
			pc := &fakePC{remote: remote}
			h.pcs[remote] = pc
			return pc, nil
		},
	})
	for _, name := range allEvents {
		name := name
		h.c.Events().On(name, func(p any) {
			h.events = append(h.events, recordedEvent{name: name, payload: p})
		})
	}
	return h
}

func (h *harness) join(username, room string) {
	h.t.Helper()
	if err := h.c.JoinVoice(context.Background(), username, room); err != nil {
		h.t.Fatalf("JoinVoice(%q, %q): %v", username, room, err)
	}
	h.reset()
}

func (h *harness) reset() {
	h.sent = nil
	h.events = nil
}

func (h *harness) eventsNamed(name string) []any {
	var out []any
	for _, e := range h.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (h *harness) sentOfKind(kind domain.Kind) []domain.Message {
	var out []domain.Message
	for _, m := range h.sent {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func voiceState(username, room string, inVoice bool, muted *bool) domain.Message {
	return domain.VoiceState{Username: username, Roomname: room, InVoice: inVoice, Muted: muted}.Message()
}

func candidate(s string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: s}
}
