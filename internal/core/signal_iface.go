package core

import "errors"

// Frame is a raw encoded payload (one JSON text message).
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks: it enqueues or fails with ErrBackpressure / ErrConnClosed.
	TrySend(Frame) error
	Close()
}
