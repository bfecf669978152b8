package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	name, err := domain.ParseRoomName(msg.Room)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", msg.Room).Msg("bad room name")
		ctl.sendError(conn, "invalid_room")
		return
	}

	if msg.Name != "" && msg.Name != ctl.Orch.Registry.Username(sid) {
		if room, ok := ctl.Orch.Rooms.GetRoom(name); ok && room.UsernameTaken(msg.Name, sid) {
			ctl.sendError(conn, "username_taken")
			return
		}
		if err := ctl.Orch.Registry.UpdateUsername(sid, msg.Name); err != nil {
			ctl.sendError(conn, "invalid_name")
			return
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", msg.Name).Msg("rename on join")
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(name)).Msg("join")
	dep, err := ctl.Orch.Join(sid, name)
	switch {
	case errors.Is(err, orch.ErrUsernameTaken):
		ctl.sendError(conn, "username_taken")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join failed")
		ctl.sendError(conn, "join_failed")
		return
	}
	ctl.announceDeparture(dep)

	room, ok := ctl.Orch.Rooms.GetRoom(name)
	if !ok {
		ctl.sendError(conn, "join_failed")
		return
	}
	ctl.send(conn, domain.Message{
		Type:    domain.KindRoomState,
		Room:    string(name),
		Members: room.MembersSnapshot(),
		Count:   room.MemberCount(),
	})

	user := domain.User{ID: domain.UserID(sid), Username: ctl.Orch.Registry.Username(sid)}
	ctl.BroadcastFrom(sid, domain.Message{Type: domain.KindMemberJoined, Room: string(name), User: &user})
}

// handleLeave leaves the current room; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	dep := ctl.Orch.KickBySID(sid)
	ctl.send(conn, domain.Message{Type: domain.KindLeft})
	ctl.announceDeparture(dep)
}

// announceDeparture tells the remaining members, voice first so their
// coordinators tear down the peer before the member disappears.
func (ctl *SignalWSController) announceDeparture(dep *orch.Departure) {
	if dep == nil {
		return
	}
	if dep.VoiceExit != nil {
		ctl.BroadcastRoom(dep.Room, *dep.VoiceExit)
	}
	user := dep.User
	ctl.BroadcastRoom(dep.Room, domain.Message{Type: domain.KindMemberLeft, Room: string(dep.Room), User: &user})
}
