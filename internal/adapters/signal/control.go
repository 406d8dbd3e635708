package signal

import (
	"errors"

	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(sid core.ConnID) {
	if err := ctl.Orch.Send(sid, protocol.NewPong()); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("pong")
	}
}

// replyError tells only the sender what went wrong.
func (ctl *SignalWSController) replyError(sid core.ConnID, err error) {
	perr := toProtocolError(err)
	metrics.RelayErrors.WithLabelValues(perr.Code).Inc()
	if err := ctl.Orch.Send(sid, perr); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("error frame not delivered")
	}
}

func toProtocolError(err error) *protocol.Error {
	var perr *protocol.Error
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.Is(err, app.ErrNotJoined):
		return protocol.NewError(protocol.CodeNotJoined, "join the room first")
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrPasswordRequired):
		return protocol.NewError(protocol.CodeForbidden, err.Error())
	default:
		log.Error().Err(err).Str("module", "signal").Msg("unexpected relay error")
		return protocol.NewError(protocol.CodeInternal, "internal error")
	}
}
