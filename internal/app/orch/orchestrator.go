package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/app"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

var (
	ErrNotInRoom          = errors.New("not in a room")
	ErrRecipientNotFound  = errors.New("recipient not in room")
	ErrUsernameTaken      = errors.New("username taken in room")
	ErrSessionNotBound    = errors.New("session not bound")
	ErrIdentityMismatch   = errors.New("sender identity mismatch")
	ErrRoomnameMismatch   = errors.New("roomname does not match current room")
	ErrMissingRecipient   = errors.New("signaling message without recipient")
	ErrSelfAddressedFrame = errors.New("message addressed to sender")
)

// Orchestrator ties the registry, rooms and backpressure policy together.
// It never touches sockets; adapters hand it frames.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
}

// Broadcast sends data to every other member of the sender's room.
func (o *Orchestrator) Broadcast(sid core.SessionID, data core.Frame) error {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.GetRoom(roomName)
	if !ok {
		return ErrNotInRoom
	}
	res := room.Broadcast(sid, data)
	o.applyPolicy(room, res)
	return nil
}

// Relay forwards a voice frame: to the member named to, or to the whole
// room when to is empty.
func (o *Orchestrator) Relay(sid core.SessionID, to string, data core.Frame) error {
	if to == "" {
		return o.Broadcast(sid, data)
	}
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.GetRoom(roomName)
	if !ok {
		return ErrNotInRoom
	}
	res, found := room.SendTo(sid, to, data)
	if !found {
		return ErrRecipientNotFound
	}
	o.applyPolicy(room, res)
	return nil
}

func (o *Orchestrator) applyPolicy(room core.RoomService, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if sid, ok := o.Registry.SIDOf(slow); ok {
				log.Warn().
					Str("module", "orch").
					Str("sid", string(sid)).
					Str("room", string(room.Room().Name)).
					Msg("backpressure, disconnecting member")
				o.Registry.Cancel(sid)
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// CheckVoiceFrame validates the identity fields of a voice message against
// the sender's session so a client cannot speak for someone else.
func (o *Orchestrator) CheckVoiceFrame(sid core.SessionID, msg domain.Message) error {
	roomName, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return ErrNotInRoom
	}
	me := o.Registry.Username(sid)
	if msg.Roomname != string(roomName) {
		return ErrRoomnameMismatch
	}
	switch {
	case msg.Type == domain.KindVoiceState:
		if msg.Username != me {
			return ErrIdentityMismatch
		}
	case msg.Type.IsSignaling():
		if msg.From != me {
			return ErrIdentityMismatch
		}
		if msg.To == "" {
			return ErrMissingRecipient
		}
		if msg.To == me {
			return ErrSelfAddressedFrame
		}
	}
	return nil
}
