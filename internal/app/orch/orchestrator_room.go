package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join adds sid to the project's room. The caller gets room-state with the
// members already present; everyone else gets user-joined. A repeated join
// changes nothing and sends nothing.
func (o *Orchestrator) Join(ctx context.Context, sid core.ConnID, projectID, token string) error {
	c, ok := o.Registry.Get(sid)
	if !ok {
		return app.ErrUnknownConn
	}
	id := domain.RoomID(projectID)
	if o.Guard != nil {
		if err := o.Guard.AllowJoin(ctx, id, token); err != nil {
			return fmt.Errorf("join %s: %w", id, err)
		}
	}
	if o.Options.SingleRoom {
		for _, other := range c.Rooms() {
			if other != id {
				o.leave(c, other)
			}
		}
	}

	room, added, err := c.Join(o.Rooms, id)
	if err != nil {
		return err
	}
	o.syncRoomGauge()
	if !added {
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(id)).Msg("duplicate join")
		return nil
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(id)).Msg("joined")

	members := make([]string, 0, room.MemberCount())
	for _, m := range room.MembersSnapshot() {
		if m.ID != sid {
			members = append(members, string(m.ID))
		}
	}
	if err := o.Send(sid, protocol.NewRoomState(projectID, members)); err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("room-state not delivered")
	}
	o.publish(room, sid, protocol.MustEncode(protocol.NewUserJoined(string(sid))))
	return nil
}

// Leave removes sid from the room; a no-op for non-members.
func (o *Orchestrator) Leave(sid core.ConnID, projectID string) error {
	c, ok := o.Registry.Get(sid)
	if !ok {
		return app.ErrUnknownConn
	}
	o.leave(c, domain.RoomID(projectID))
	return nil
}

func (o *Orchestrator) leave(c *app.Conn, id domain.RoomID) {
	room, removed := c.Leave(o.Rooms, id)
	if !removed {
		return
	}
	o.syncRoomGauge()
	log.Info().Str("module", "app.orch").Str("sid", string(c.ID)).Str("room", string(id)).Msg("left")
	o.publish(room, c.ID, protocol.MustEncode(protocol.NewUserLeft(string(c.ID))))
}

func (o *Orchestrator) CameraUpdate(sid core.ConnID, msg *protocol.CameraUpdate) error {
	data, err := protocol.Encode(protocol.NewCameraUpdated(string(sid), msg))
	if err != nil {
		return err
	}
	return o.relay(sid, domain.RoomID(msg.ProjectID), data)
}

// AnnotationAdd fans the annotation out as-is. Nothing is kept, so members
// who join later never see it.
func (o *Orchestrator) AnnotationAdd(sid core.ConnID, msg *protocol.AnnotationAdd) error {
	data, err := protocol.Encode(protocol.NewAnnotationAdded(string(sid), msg.Annotation))
	if err != nil {
		return err
	}
	return o.relay(sid, domain.RoomID(msg.ProjectID), data)
}

func (o *Orchestrator) relay(sid core.ConnID, id domain.RoomID, data core.Frame) error {
	c, ok := o.Registry.Get(sid)
	if !ok {
		return app.ErrUnknownConn
	}
	if o.Options.RequireJoin && !c.InRoom(id) {
		return app.ErrNotJoined
	}
	room, ok := o.Rooms.Get(id)
	if !ok {
		return nil
	}
	o.publish(room, sid, data)
	return nil
}

// EvictRoom drops a live room and closes every member's connection.
func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	members := o.Rooms.StopRoom(id)
	for _, sid := range members {
		if c, ok := o.Registry.Get(sid); ok {
			c.Forget(id)
		}
		o.Kick(sid, "evicted")
	}
	o.syncRoomGauge()
	if len(members) > 0 {
		log.Info().Str("module", "app.orch").Str("room", string(id)).Int("members", len(members)).Msg("room evicted")
	}
}

func (o *Orchestrator) RoomsInfo() []core.RoomInfo {
	return o.Rooms.List()
}
