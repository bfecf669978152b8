package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDecode_VoiceState(t *testing.T) {
	raw := `{"type":"voice-state","username":"dave","roomname":"party","inVoice":true,"muted":false}`
	m, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	s := VoiceStateOf(m)
	if s.Username != "dave" || s.Roomname != "party" || !s.InVoice {
		t.Errorf("state = %+v", s)
	}
	if s.Muted == nil || *s.Muted {
		t.Errorf("muted = %v, want explicit false", s.Muted)
	}
}

func TestDecode_MutedAbsent(t *testing.T) {
	m, err := Decode([]byte(`{"type":"voice-state","username":"a","roomname":"r","inVoice":false}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Muted != nil {
		t.Errorf("muted = %v, want nil", *m.Muted)
	}
}

func TestDecode_MissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"username":"a"}`)); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for bad json")
	}
}

func TestMessage_OfferCarriesSessionDescription(t *testing.T) {
	m := Message{
		Type:  KindOffer,
		From:  "alice",
		To:    "bob",
		Offer: &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"offer":{"type":"offer","sdp":"v=0"}`) {
		t.Errorf("wire = %s", b)
	}
	if strings.Contains(string(b), "muted") {
		t.Errorf("absent muted must not be encoded: %s", b)
	}
}

func TestKind_Classification(t *testing.T) {
	for _, k := range []Kind{KindOffer, KindAnswer, KindICECandidate} {
		if !k.IsSignaling() || !k.IsVoice() {
			t.Errorf("%s should be signaling and voice", k)
		}
	}
	if KindVoiceState.IsSignaling() || !KindVoiceState.IsVoice() {
		t.Error("voice-state classification wrong")
	}
	if KindChat.IsVoice() {
		t.Error("chat is not voice")
	}
}

func TestValidateUsername(t *testing.T) {
	if err := ValidateUsername(""); err != ErrUsernameEmpty {
		t.Errorf("empty: err = %v", err)
	}
	if err := ValidateUsername(strings.Repeat("x", MaxUsernameLen+1)); err != ErrUsernameTooLong {
		t.Errorf("long: err = %v", err)
	}
	u, err := NewUser("alice")
	if err != nil || u.Username != "alice" || u.ID == "" {
		t.Errorf("NewUser = %+v, %v", u, err)
	}
}

func TestMarshal_VoiceStateAlwaysCarriesInVoice(t *testing.T) {
	left, err := json.Marshal(VoiceState{Username: "dave", Roomname: "party", InVoice: false, Muted: Bool(false)}.Message())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(left), `"inVoice":false`) {
		t.Errorf("leave record = %s, want inVoice:false", left)
	}
	if strings.Count(string(left), `"inVoice"`) != 1 {
		t.Errorf("inVoice written twice: %s", left)
	}

	offer, err := json.Marshal(Message{Type: KindOffer, From: "a", To: "b"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(offer), "inVoice") {
		t.Errorf("offer = %s, want no inVoice", offer)
	}

	back, err := Decode(left)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.InVoice || back.Username != "dave" || back.Muted == nil {
		t.Errorf("decoded = %+v", back)
	}
}
