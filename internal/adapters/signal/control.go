package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.send(conn, domain.Message{Type: domain.KindPong})
}

func (ctl *SignalWSController) handleChat(
	sid core.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
) {
	roomName, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		ctl.sendError(conn, "not_in_room")
		return
	}
	if !ctl.allow(sid) {
		ctl.sendError(conn, "rate_limited")
		return
	}
	out := domain.Message{
		Type: domain.KindChat,
		From: ctl.Orch.Registry.Username(sid),
		Room: string(roomName),
		Text: msg.Text,
	}
	ctl.BroadcastFrom(sid, out)
	log.Debug().Str("module", "signal").Str("sid", string(sid)).Int("len", len(msg.Text)).Msg("chat")
}

func (ctl *SignalWSController) allow(sid core.SessionID) bool {
	if ctl.Limiter == nil {
		return true
	}
	return ctl.Limiter.Allow(domain.UserID(sid))
}
