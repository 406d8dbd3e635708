package app

import (
	"fmt"

	"github.com/dkeye/ReviewHub/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose outbound buffer is full.
type Policy interface {
	OnBackPressure(room core.RoomService, sid core.ConnID) BackpressureAction
}

// DropPolicy discards the frame for the slow member only.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, core.ConnID) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects the slow member.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, core.ConnID) BackpressureAction {
	return KickMember
}

func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
