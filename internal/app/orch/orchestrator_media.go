package orch

import (
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/rs/zerolog/log"
)

// AttachMedia makes an open data channel the preferred outbound path for sid.
func (o *Orchestrator) AttachMedia(sid core.ConnID, mc core.SignalConnection) bool {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	sess.UpdateMedia(mc)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("data channel attached")
	return true
}

// DetachMedia falls back to the socket, unless mc was already replaced.
func (o *Orchestrator) DetachMedia(sid core.ConnID, mc core.SignalConnection) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if sess.Media() != mc {
		return
	}
	sess.UpdateMedia(nil)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("data channel detached")
}
