package voice

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/voicemesh/internal/core"
)

type sessionProbe struct {
	candidates []webrtc.ICECandidateInit
	streams    []*core.RemoteStream
	states     []PeerState
}

func newTestSession(t *testing.T, role Role) (*PeerSession, *fakePC, *sessionProbe) {
	t.Helper()
	pc := &fakePC{remote: "bob"}
	probe := &sessionProbe{}
	inline := func(fn func()) { fn() }
	s := newPeerSession("bob", role, pc, inline, sessionObserver{
		onCandidate: func(ci webrtc.ICECandidateInit) { probe.candidates = append(probe.candidates, ci) },
		onStream:    func(rs *core.RemoteStream) { probe.streams = append(probe.streams, rs) },
		onState:     func(st PeerState) { probe.states = append(probe.states, st) },
	})
	return s, pc, probe
}

func TestPeerSession_InitialStateByRole(t *testing.T) {
	s, _, _ := newTestSession(t, RoleInitiator)
	if s.State() != StateOffering {
		t.Errorf("initiator state = %s, want %s", s.State(), StateOffering)
	}
	r, _, _ := newTestSession(t, RoleResponder)
	if r.State() != StateAwaitingOffer {
		t.Errorf("responder state = %s, want %s", r.State(), StateAwaitingOffer)
	}
}

func TestPeerSession_InitiatorHandshake(t *testing.T) {
	s, pc, _ := newTestSession(t, RoleInitiator)

	offer, err := s.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || pc.offers != 1 {
		t.Errorf("offer = %+v, pc.offers = %d", offer, pc.offers)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	if err := s.HandleAnswer(answer); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	if s.State() != StateHaveRemoteDescription {
		t.Errorf("state = %s, want %s", s.State(), StateHaveRemoteDescription)
	}
	if pc.remoteDesc == nil || pc.remoteDesc.SDP != "v=0" {
		t.Errorf("remote description not applied: %+v", pc.remoteDesc)
	}
}

func TestPeerSession_ResponderHandshake(t *testing.T) {
	s, pc, _ := newTestSession(t, RoleResponder)

	if _, err := s.CreateAnswer(); !errors.Is(err, ErrNegotiation) {
		t.Fatalf("CreateAnswer before offer: err = %v, want ErrNegotiation", err)
	}
	if err := s.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if s.State() != StateHaveRemoteDescription {
		t.Errorf("state = %s", s.State())
	}
	if _, err := s.CreateAnswer(); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if pc.answers != 1 {
		t.Errorf("answers = %d, want 1", pc.answers)
	}
	if _, err := s.CreateAnswer(); !errors.Is(err, ErrNegotiation) {
		t.Errorf("second CreateAnswer: err = %v, want ErrNegotiation", err)
	}
}

func TestPeerSession_RoleViolations(t *testing.T) {
	r, _, _ := newTestSession(t, RoleResponder)
	if _, err := r.CreateOffer(); !errors.Is(err, ErrNegotiation) {
		t.Errorf("responder CreateOffer: err = %v", err)
	}
	if err := r.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("responder HandleAnswer: err = %v", err)
	}

	i, _, _ := newTestSession(t, RoleInitiator)
	if err := i.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("initiator HandleOffer: err = %v", err)
	}
	if err := i.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("HandleAnswer before CreateOffer: err = %v", err)
	}
}

func TestPeerSession_CreateOfferOutsideOffering(t *testing.T) {
	s, _, _ := newTestSession(t, RoleInitiator)
	if _, err := s.CreateOffer(); err != nil {
		t.Fatal(err)
	}
	if err := s.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateOffer(); !errors.Is(err, ErrNegotiation) {
		t.Errorf("CreateOffer in %s: err = %v, want ErrNegotiation", s.State(), err)
	}
}

func TestPeerSession_MalformedDescriptions(t *testing.T) {
	r, _, _ := newTestSession(t, RoleResponder)
	if err := r.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("empty SDP: err = %v", err)
	}
	if err := r.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("wrong type: err = %v", err)
	}

	failing, pc, _ := newTestSession(t, RoleResponder)
	pc.failSetRemote = errors.New("bad sdp")
	if err := failing.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("primitive failure: err = %v", err)
	}
}

func TestPeerSession_CandidatesBufferedUntilRemoteDescription(t *testing.T) {
	s, pc, _ := newTestSession(t, RoleResponder)

	for _, c := range []string{"c1", "c2", "c3"} {
		if err := s.AddICECandidate(webrtc.ICECandidateInit{Candidate: c}); err != nil {
			t.Fatalf("AddICECandidate(%s): %v", c, err)
		}
	}
	if s.PendingCandidates() != 3 || len(pc.candidates) != 0 {
		t.Fatalf("pending = %d, applied = %d", s.PendingCandidates(), len(pc.candidates))
	}

	if err := s.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if err := s.AddICECandidate(webrtc.ICECandidateInit{Candidate: "c4"}); err != nil {
		t.Fatalf("AddICECandidate after remote: %v", err)
	}

	var got []string
	for _, c := range pc.candidates {
		got = append(got, c.Candidate)
	}
	if want := []string{"c1", "c2", "c3", "c4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("applied = %v, want %v", got, want)
	}
	if s.PendingCandidates() != 0 {
		t.Errorf("pending = %d after flush", s.PendingCandidates())
	}
}

func TestPeerSession_AddLocalStream(t *testing.T) {
	captures := &fakeCaptures{t: t}
	capture, _ := captures.Acquire(context.Background(), core.VoiceConstraints)

	s, pc, _ := newTestSession(t, RoleInitiator)
	if err := s.AddLocalStream(capture); err != nil {
		t.Fatalf("AddLocalStream: %v", err)
	}
	if len(pc.tracks) != 1 || pc.tracks[0] != capture.Track() {
		t.Errorf("tracks = %v", pc.tracks)
	}
	if err := s.AddLocalStream(capture); !errors.Is(err, ErrNegotiation) {
		t.Errorf("second attach: err = %v", err)
	}

	late, _, _ := newTestSession(t, RoleInitiator)
	if _, err := late.CreateOffer(); err != nil {
		t.Fatal(err)
	}
	if err := late.AddLocalStream(capture); !errors.Is(err, ErrNegotiation) {
		t.Errorf("attach after offer: err = %v", err)
	}
	if captures.last().stopped != 0 {
		t.Error("session stopped the shared capture")
	}
}

func TestPeerSession_ConnectionStates(t *testing.T) {
	s, pc, probe := newTestSession(t, RoleInitiator)

	pc.onState(webrtc.PeerConnectionStateConnecting)
	pc.onState(webrtc.PeerConnectionStateConnected)
	pc.onState(webrtc.PeerConnectionStateConnected)
	pc.onState(webrtc.PeerConnectionStateFailed)
	pc.onState(webrtc.PeerConnectionStateClosed)

	if want := []PeerState{StateConnected, StateFailed}; !reflect.DeepEqual(probe.states, want) {
		t.Errorf("states = %v, want %v", probe.states, want)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	if err := s.AddICECandidate(webrtc.ICECandidateInit{Candidate: "late"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("candidate on failed session: err = %v", err)
	}
}

func TestPeerSession_RemoteStreamAndCandidatesForwarded(t *testing.T) {
	s, pc, probe := newTestSession(t, RoleInitiator)
	pc.onICE(webrtc.ICECandidateInit{Candidate: "local1"})
	pc.onStream(core.RemoteStream{ID: "s1"})
	pc.onStream(core.RemoteStream{ID: "s2"})

	if len(probe.candidates) != 1 || probe.candidates[0].Candidate != "local1" {
		t.Errorf("candidates = %v", probe.candidates)
	}
	if len(probe.streams) != 1 || s.RemoteStream().ID != "s1" {
		t.Errorf("streams = %v, current = %v", probe.streams, s.RemoteStream())
	}
}

func TestPeerSession_CloseIsIdempotentAndSilencesCallbacks(t *testing.T) {
	s, pc, probe := newTestSession(t, RoleResponder)
	_ = s.AddICECandidate(webrtc.ICECandidateInit{Candidate: "c1"})
	pc.onStream(core.RemoteStream{ID: "s1"})

	s.Close()
	s.Close()

	if pc.closed != 1 {
		t.Errorf("pc closed %d times, want 1", pc.closed)
	}
	if s.State() != StateClosed || s.PendingCandidates() != 0 || s.RemoteStream() != nil {
		t.Errorf("after close: state=%s pending=%d stream=%v", s.State(), s.PendingCandidates(), s.RemoteStream())
	}

	pc.onICE(webrtc.ICECandidateInit{Candidate: "stale"})
	pc.onState(webrtc.PeerConnectionStateFailed)
	if len(probe.candidates) != 0 || len(probe.states) != 0 {
		t.Errorf("stale callbacks delivered: %v %v", probe.candidates, probe.states)
	}
	if err := s.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"}); !errors.Is(err, ErrNegotiation) {
		t.Errorf("HandleOffer after close: err = %v", err)
	}
}
