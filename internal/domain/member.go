package domain

// Member represents a connection's participation meta for rooms.
// No transport or lifecycle logic here.
type Member struct {
	// ConnID is the opaque connection id other viewers see as userId.
	ConnID string
	// ViewerToken is the anonymous client-token cookie, if any.
	ViewerToken string
	// UserID is set when the viewer is logged in.
	UserID UserID
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(connID, viewerToken string, uid UserID) *Member {
	return &Member{ConnID: connID, ViewerToken: viewerToken, UserID: uid}
}
