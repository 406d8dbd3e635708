package signal

import (
	"context"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, sid core.ConnID, p *protocol.JoinRoom) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("project_id", p.ProjectID).Msg("join")
	if err := ctl.Orch.Join(ctx, sid, p.ProjectID, p.Token); err != nil {
		ctl.replyError(sid, err)
	}
}

func (ctl *SignalWSController) handleLeave(sid core.ConnID, p *protocol.LeaveRoom) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("project_id", p.ProjectID).Msg("leave")
	if err := ctl.Orch.Leave(sid, p.ProjectID); err != nil {
		ctl.replyError(sid, err)
	}
}

func (ctl *SignalWSController) handleCameraUpdate(sid core.ConnID, p *protocol.CameraUpdate) {
	if err := ctl.Orch.CameraUpdate(sid, p); err != nil {
		ctl.replyError(sid, err)
	}
}

func (ctl *SignalWSController) handleAnnotationAdd(sid core.ConnID, p *protocol.AnnotationAdd) {
	if err := ctl.Orch.AnnotationAdd(sid, p); err != nil {
		ctl.replyError(sid, err)
	}
}
