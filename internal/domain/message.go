package domain

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind tags every message carried over the signaling channel.
type Kind string

const (
	KindVoiceState   Kind = "voice-state"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"

	KindChat         Kind = "chat"
	KindJoin         Kind = "join"
	KindLeave        Kind = "leave"
	KindLeft         Kind = "left"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"
	KindRename       Kind = "rename"
	KindWhoAmI       Kind = "whoami"
	KindRoomState    Kind = "room_state"
	KindMemberJoined Kind = "member_joined"
	KindMemberLeft   Kind = "member_left"
	KindMemberUpdate Kind = "member_updated"
	KindError        Kind = "error"
)

// IsSignaling reports whether k is one of the point-to-point handshake kinds.
func (k Kind) IsSignaling() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// IsVoice reports whether k belongs to the voice mesh protocol.
func (k Kind) IsVoice() bool {
	return k == KindVoiceState || k.IsSignaling()
}

// Message is the single wire envelope. Only the fields relevant to Type are set.
type Message struct {
	Type Kind `json:"type"`

	// voice-state
	Username string `json:"username,omitempty"`
	Roomname string `json:"roomname,omitempty"`
	InVoice  bool   `json:"inVoice,omitempty"`
	Muted    *bool  `json:"muted,omitempty"`

	// offer / answer / ice-candidate
	From      string                     `json:"from,omitempty"`
	To        string                     `json:"to,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	// chat and relay control
	Room    string       `json:"room,omitempty"`
	Name    string       `json:"name,omitempty"`
	Text    string       `json:"text,omitempty"`
	Error   string       `json:"error,omitempty"`
	Members []MemberView `json:"members,omitempty"`
	Count   int          `json:"count,omitempty"`
	User    *User        `json:"user,omitempty"`
}

// VoiceState is the gossip record every participant broadcasts on change.
type VoiceState struct {
	Username string
	Roomname string
	InVoice  bool
	Muted    *bool
}

func (s VoiceState) Message() Message {
	return Message{
		Type:     KindVoiceState,
		Username: s.Username,
		Roomname: s.Roomname,
		InVoice:  s.InVoice,
		Muted:    s.Muted,
	}
}

func VoiceStateOf(m Message) VoiceState {
	return VoiceState{Username: m.Username, Roomname: m.Roomname, InVoice: m.InVoice, Muted: m.Muted}
}

// MarshalJSON always writes inVoice on voice-state records, where false is
// meaningful; other kinds leave it out.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != KindVoiceState {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		plain
		InVoice bool `json:"inVoice"`
	}{plain(m), m.InVoice})
}

// Decode parses a raw frame into a Message, rejecting frames without a type.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return m, nil
}

// Bool returns a pointer to b, for optional wire fields.
func Bool(b bool) *bool { return &b }
