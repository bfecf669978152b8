package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

func (ctl *SignalWSController) handleRename(
	sid core.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	if err := domain.ValidateUsername(msg.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	if roomName, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		if room, ok := ctl.Orch.Rooms.GetRoom(roomName); ok && room.UsernameTaken(msg.Name, sid) {
			ctl.sendError(conn, "username_taken")
			return
		}
		// peers key their sessions by name
		if inVoice, _ := ctl.voiceOf(sid); inVoice {
			ctl.sendError(conn, "rename_in_voice")
			return
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", msg.Name).Msg("rename")
	if err := ctl.Orch.Registry.UpdateUsername(sid, msg.Name); err != nil {
		ctl.sendError(conn, "invalid_name")
		return
	}
	ctl.handleWhoAmI(sid, conn)

	user := domain.User{ID: domain.UserID(sid), Username: msg.Name}
	ctl.BroadcastFrom(sid, domain.Message{Type: domain.KindMemberUpdate, User: &user})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := domain.Message{
		Type:     domain.KindWhoAmI,
		Username: ctl.Orch.Registry.Username(sid),
	}
	if roomName, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = string(roomName)
	}
	ctl.send(conn, resp)
}

func (ctl *SignalWSController) voiceOf(sid core.SessionID) (inVoice, muted bool) {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return false, false
	}
	return sess.Voice()
}
