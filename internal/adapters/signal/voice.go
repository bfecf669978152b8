package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/app/orch"
	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

// handleVoice relays voice-state and the handshake kinds. The relay does
// not interpret descriptions or candidates; it forwards the original frame.
func (ctl *SignalWSController) handleVoice(
	sid core.SessionID,
	conn *WsSignalConn,
	msg domain.Message,
	raw []byte,
) {
	if !ctl.allow(sid) {
		ctl.sendError(conn, "rate_limited")
		return
	}
	if err := ctl.Orch.CheckVoiceFrame(sid, msg); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", string(msg.Type)).Msg("voice frame rejected")
		ctl.sendError(conn, voiceErrorCode(err))
		return
	}

	var to string
	if msg.Type == domain.KindVoiceState {
		ctl.Orch.NoteVoiceState(sid, msg)
	} else {
		to = msg.To
	}
	if err := ctl.Orch.Relay(sid, to, raw); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("to", to).Msg("relay failed")
		ctl.sendError(conn, voiceErrorCode(err))
	}
}

func voiceErrorCode(err error) string {
	switch {
	case errors.Is(err, orch.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, orch.ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, orch.ErrIdentityMismatch), errors.Is(err, orch.ErrRoomnameMismatch):
		return "identity_mismatch"
	default:
		return "bad_payload"
	}
}
