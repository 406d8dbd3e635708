package app

import (
	"context"
	"sync"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Conn is the relay-side state of one live connection.
// Membership changes for a connection are serialized on mu.
type Conn struct {
	ID      core.ConnID
	Session core.MemberSession
	// Transport is the connection's own socket, independent of any data channel.
	Transport core.SignalConnection

	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	rooms  map[domain.RoomID]struct{}
	closed bool
}

func NewConn(id core.ConnID, sess core.MemberSession, transport core.SignalConnection, cancel context.CancelFunc, limiter *rate.Limiter) *Conn {
	return &Conn{
		ID:        id,
		Session:   sess,
		Transport: transport,
		cancel:    cancel,
		limiter:   limiter,
		rooms:     make(map[domain.RoomID]struct{}),
	}
}

// Allow reports whether one more inbound event fits the connection's rate budget.
func (c *Conn) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

func (c *Conn) InRoom(id domain.RoomID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[id]
	return ok
}

func (c *Conn) Rooms() []domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.RoomID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*Conn)}
}

func (r *Registry) Bind(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	log.Info().Str("module", "app.registry").Str("sid", string(c.ID)).Msg("bound connection")
}

func (r *Registry) Get(sid core.ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[sid]
	return c, ok
}

func (r *Registry) GetSession(sid core.ConnID) (core.MemberSession, bool) {
	if c, ok := r.Get(sid); ok {
		return c.Session, true
	}
	return nil, false
}

// Unbind removes the connection and reports whether it was still bound.
func (r *Registry) Unbind(sid core.ConnID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[sid]
	if !ok {
		return nil, false
	}
	delete(r.conns, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind connection")
	return c, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Join enters the room on behalf of the connection. A closed connection
// cannot join anything.
func (c *Conn) Join(rooms core.RoomManager, id domain.RoomID) (core.RoomService, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, false, ErrUnknownConn
	}
	room, added := rooms.Join(id, c.ID, c.Session)
	c.rooms[id] = struct{}{}
	return room, added, nil
}

// Leave is a no-op when the connection is not in the room.
func (c *Conn) Leave(rooms core.RoomManager, id domain.RoomID) (core.RoomService, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[id]; !ok {
		return nil, false
	}
	delete(c.rooms, id)
	return rooms.Leave(id, c.ID)
}

// Forget drops a room the manager already discarded.
func (c *Conn) Forget(id domain.RoomID) {
	c.mu.Lock()
	delete(c.rooms, id)
	c.mu.Unlock()
}

// Close marks the connection closed, cancels its context and hands back the
// rooms it was in. Only the first call gets the rooms.
func (c *Conn) Close() ([]domain.RoomID, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.closed = true
	out := make([]domain.RoomID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	clear(c.rooms)
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	return out, true
}
