package signal

import (
	"context"
	"time"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) pongWait() time.Duration {
	return ctl.opts.PingPeriod * 10 / 9
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cl.sid)
		if p := cl.getPeer(); p != nil {
			p.Close()
		}
		cl.conn.Close()
	}()

	c := cl.conn.conn
	c.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(ctl.pongWait()))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
			}
			return
		}
		ctl.dispatch(ctx, cl, data, false)
	}
}

// dispatch handles one inbound frame from the socket or the data channel.
func (ctl *SignalWSController) dispatch(ctx context.Context, cl *client, data []byte, fromDataChannel bool) {
	sid := cl.sid
	if !ctl.Orch.Allow(sid) {
		ctl.replyError(sid, protocol.NewError(protocol.CodeRateLimited, "too many events"))
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		ctl.replyError(sid, err)
		return
	}

	switch m := msg.(type) {
	case *protocol.JoinRoom:
		ctl.countEvent(protocol.TypeJoinRoom)
		ctl.handleJoin(ctx, sid, m)
	case *protocol.LeaveRoom:
		ctl.countEvent(protocol.TypeLeaveRoom)
		ctl.handleLeave(sid, m)
	case *protocol.CameraUpdate:
		ctl.countEvent(protocol.TypeCameraUpdate)
		ctl.handleCameraUpdate(sid, m)
	case *protocol.AnnotationAdd:
		ctl.countEvent(protocol.TypeAnnotationAdd)
		ctl.handleAnnotationAdd(sid, m)
	case *protocol.Ping:
		ctl.handlePing(sid)
	case *protocol.Offer:
		if fromDataChannel {
			ctl.replyError(sid, protocol.BadPayload("negotiate over the socket"))
			return
		}
		ctl.handleOffer(ctx, cl, m)
	case *protocol.Candidate:
		if fromDataChannel {
			ctl.replyError(sid, protocol.BadPayload("negotiate over the socket"))
			return
		}
		ctl.handleCandidate(cl, m)
	}
}

func (ctl *SignalWSController) countEvent(typ string) {
	metrics.RelayEvents.WithLabelValues(typ).Inc()
}

// sendJSON writes straight to one transport, bypassing the preferred path.
func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}
