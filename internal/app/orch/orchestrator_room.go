package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

// Departure describes a member that just left a room.
type Departure struct {
	Room domain.RoomName
	User domain.User
	// VoiceExit is set when the member was still in voice; the room should
	// hear that it left.
	VoiceExit *domain.Message
}

// Join moves sid into roomName. When sid was in another room, the
// departure from that room is returned.
func (o *Orchestrator) Join(sid core.SessionID, roomName domain.RoomName) (*Departure, error) {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, ErrSessionNotBound
	}
	username := o.Registry.Username(sid)
	if target, ok := o.Rooms.GetRoom(roomName); ok && target.UsernameTaken(username, sid) {
		return nil, ErrUsernameTaken
	}

	var dep *Departure
	if current, _, ok := o.Registry.RoomOf(sid); ok {
		if current == roomName {
			return nil, nil
		}
		dep = o.KickBySID(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("kicked from room")
	}

	room := o.Rooms.GetOrCreate(roomName)
	room.AddMember(sid, session)
	o.Registry.UpdateRoom(sid, roomName)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Msg("added to room")
	return dep, nil
}

// KickBySID removes sid from its room. It returns nil when sid was in no room.
func (o *Orchestrator) KickBySID(sid core.SessionID) *Departure {
	roomName, session, ok := o.Registry.RoomOf(sid)
	if !ok {
		return nil
	}
	dep := &Departure{Room: roomName, User: domain.User{ID: domain.UserID(sid), Username: o.Registry.Username(sid)}}
	if inVoice, _ := session.Voice(); inVoice {
		exit := domain.VoiceState{
			Username: dep.User.Username,
			Roomname: string(roomName),
			InVoice:  false,
			Muted:    domain.Bool(false),
		}.Message()
		dep.VoiceExit = &exit
		session.SetVoice(false, false)
	}
	o.cleanupMembership(sid, roomName)
	return dep
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID, roomName domain.RoomName) {
	if room, ok := o.Rooms.GetRoom(roomName); ok {
		room.RemoveMember(sid)
		if room.MemberCount() == 0 {
			o.Rooms.StopRoom(roomName)
			log.Info().Str("module", "orch").Str("room", string(roomName)).Msg("room empty, stopped")
		}
	}
	o.Registry.RemoveRoom(sid)
}

// OnDisconnect cleans up after a closed socket. sess guards against a
// replaced connection of the same client token.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, sess core.MemberSession) *Departure {
	if current, ok := o.Registry.GetSession(sid); !ok || current != sess {
		return nil
	}
	dep := o.KickBySID(sid)
	o.Registry.Unbind(sid, sess)
	return dep
}

func (o *Orchestrator) EvictRoom(name domain.RoomName) {
	for _, snap := range o.Registry.MembersOfRoom(name) {
		o.Registry.Cancel(snap.SID)
		o.KickBySID(snap.SID)
	}
	o.Rooms.StopRoom(name)
}
