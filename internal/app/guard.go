package app

import (
	"context"
	"errors"

	"github.com/dkeye/ReviewHub/internal/domain"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrNotJoined   = errors.New("not joined")
)

// JoinGuard authorizes a join before the connection enters a room.
// A nil guard admits everyone.
type JoinGuard interface {
	AllowJoin(ctx context.Context, room domain.RoomID, token string) error
}
