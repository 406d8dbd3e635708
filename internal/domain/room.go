package domain

// RoomID is the project id a live viewing session is scoped to.
type RoomID string

const MaxRoomIDLen = 128

type Room struct {
	ID RoomID
}
