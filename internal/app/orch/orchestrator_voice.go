package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
	"github.com/dkeye/voicemesh/internal/domain"
)

// NoteVoiceState remembers what sid last announced, for room snapshots and
// for the implicit leave on disconnect.
func (o *Orchestrator) NoteVoiceState(sid core.SessionID, msg domain.Message) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	_, wasMuted := sess.Voice()
	muted := wasMuted
	if msg.Muted != nil {
		muted = *msg.Muted
	}
	if !msg.InVoice {
		muted = false
	}
	sess.SetVoice(msg.InVoice, muted)
	log.Debug().
		Str("module", "orch").
		Str("sid", string(sid)).
		Bool("in_voice", msg.InVoice).
		Bool("muted", muted).
		Msg("voice state")
}
