package orch

import (
	"context"

	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Options struct {
	// RequireJoin rejects relay events for rooms the sender is not in.
	RequireJoin bool
	// SingleRoom makes a join leave every other room first.
	SingleRoom bool
	// Rate and Burst bound inbound events per connection. Zero Rate disables the limit.
	Rate  rate.Limit
	Burst int
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Guard    app.JoinGuard
	Options  Options
}

// Connect registers a fresh connection and returns its lifetime context,
// canceled on Disconnect.
func (o *Orchestrator) Connect(ctx context.Context, sid core.ConnID, meta *domain.Member, transport core.SignalConnection) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	var limiter *rate.Limiter
	if o.Options.Rate > 0 {
		limiter = rate.NewLimiter(o.Options.Rate, max(o.Options.Burst, 1))
	}
	sess := core.NewMemberSession(meta).UpdateSignal(transport)
	o.Registry.Bind(app.NewConn(sid, sess, transport, cancel, limiter))
	metrics.RelayConnections.Inc()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("viewer", meta.ViewerToken).Msg("connected")
	return ctx
}

// Disconnect removes the connection from every room it is in and tells the
// remaining members. Safe to call more than once.
func (o *Orchestrator) Disconnect(sid core.ConnID) {
	c, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	rooms, first := c.Close()
	if !first {
		return
	}
	metrics.RelayConnections.Dec()

	left := protocol.MustEncode(protocol.NewUserLeft(string(sid)))
	for _, id := range rooms {
		room, removed := o.Rooms.Leave(id, sid)
		if removed {
			o.publish(room, sid, left)
		}
	}
	if mc := c.Session.Media(); mc != nil {
		mc.Close()
	}
	o.syncRoomGauge()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Int("rooms", len(rooms)).Msg("disconnected")
}

// Kick disconnects sid and closes its socket.
func (o *Orchestrator) Kick(sid core.ConnID, reason string) {
	c, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	o.Disconnect(sid)
	if c.Transport != nil {
		c.Transport.Close()
	}
	metrics.RelayKicks.WithLabelValues(reason).Inc()
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("reason", reason).Msg("kicked")
}

// Allow applies the per-connection flood limit.
func (o *Orchestrator) Allow(sid core.ConnID) bool {
	c, ok := o.Registry.Get(sid)
	if !ok {
		return false
	}
	return c.Allow()
}

// Send delivers one frame to sid over its preferred path.
func (o *Orchestrator) Send(sid core.ConnID, v any) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return app.ErrUnknownConn
	}
	sc := sess.Signal()
	if sc == nil {
		return core.ErrConnClosed
	}
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return sc.TrySend(data)
}

func (o *Orchestrator) publish(room core.RoomService, from core.ConnID, data core.Frame) {
	res := room.Broadcast(from, data)
	metrics.RelayFramesSent.Add(float64(res.SendTo))
	for _, slow := range res.Dropped {
		metrics.RelayFramesDropped.Inc()
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			o.Kick(slow, "backpressure")
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) syncRoomGauge() {
	metrics.RelayRooms.Set(float64(o.Rooms.Count()))
}
