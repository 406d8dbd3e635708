package core

import "github.com/dkeye/ReviewHub/internal/domain"

// ConnID is the opaque id the transport assigns to a connection at connect time.
type ConnID string

// MemberSession binds domain.Member and its transport endpoints.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	// Signal returns the preferred outbound path: the media data channel when
	// it is attached, the signaling socket otherwise.
	Signal() SignalConnection
	Media() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(SignalConnection) MemberSession
}
