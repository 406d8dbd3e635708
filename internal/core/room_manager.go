package core

import (
	"sync"

	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomManager struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]RoomService
}

func NewRoomManager() RoomManager {
	return &roomManager{rooms: make(map[domain.RoomID]RoomService)}
}

// Join and Leave hold the manager lock across the membership change so a room
// can never be pruned between a lookup and a concurrent add.
func (m *roomManager) Join(id domain.RoomID, sid ConnID, ms MemberSession) (RoomService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = NewRoomService(&domain.Room{ID: id})
		m.rooms[id] = room
		log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room created")
	}
	return room, room.AddMember(sid, ms)
}

func (m *roomManager) Leave(id domain.RoomID, sid ConnID) (RoomService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, false
	}
	removed := room.RemoveMember(sid)
	if room.MemberCount() == 0 {
		delete(m.rooms, id)
		log.Info().Str("module", "core.rooms").Str("room", string(id)).Msg("room pruned")
	}
	return room, removed
}

func (m *roomManager) Get(id domain.RoomID) (RoomService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *roomManager) List() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (m *roomManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *roomManager) StopRoom(id domain.RoomID) []ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil
	}
	delete(m.rooms, id)
	snap := room.MembersSnapshot()
	out := make([]ConnID, 0, len(snap))
	for _, dto := range snap {
		out = append(out, dto.ID)
	}
	return out
}
