// Package protocol defines the relay wire format: flat JSON envelopes
// discriminated by a "type" field.
package protocol

// Client -> server.
const (
	TypeJoinRoom      = "join-room"
	TypeLeaveRoom     = "leave-room"
	TypeCameraUpdate  = "camera-update"
	TypeAnnotationAdd = "annotation-add"
	TypePing          = "ping"
	TypeOffer         = "offer"
	TypeCandidate     = "candidate"
)

// Server -> client.
const (
	TypeUserJoined      = "user-joined"
	TypeUserLeft        = "user-left"
	TypeCameraUpdated   = "camera-updated"
	TypeAnnotationAdded = "annotation-added"
	TypeRoomState       = "room-state"
	TypePong            = "pong"
	TypeAnswer          = "answer"
	TypeError           = "error"
)

// Error codes carried by error frames.
const (
	CodeBadPayload  = "bad_payload"
	CodeNotJoined   = "not_joined"
	CodeForbidden   = "forbidden"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// MaxProjectIDLen bounds the room key accepted from clients.
const MaxProjectIDLen = 128
