package core

import (
	"github.com/dkeye/ReviewHub/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the relay.
type PublishResult struct {
	SendTo  int
	Dropped []ConnID
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID     ConnID        `json:"userId"`
	UserID domain.UserID `json:"accountId,omitempty"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Has(sid ConnID) bool

	// AddMember reports whether sid was newly added.
	AddMember(sid ConnID, ms MemberSession) bool
	// RemoveMember reports whether sid was a member.
	RemoveMember(sid ConnID) bool
	Broadcast(from ConnID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"project_id"`
	MemberCount int           `json:"member_count"`
}

// RoomManager owns the room id -> room mapping. Rooms exist only while they
// have members: Join creates on demand, Leave prunes the room it empties.
type RoomManager interface {
	Join(id domain.RoomID, sid ConnID, ms MemberSession) (room RoomService, added bool)
	Leave(id domain.RoomID, sid ConnID) (room RoomService, removed bool)
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	Count() int
	// StopRoom drops the room and returns the ids that were in it.
	StopRoom(id domain.RoomID) []ConnID
}
