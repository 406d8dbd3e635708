package protocol

import "github.com/goccy/go-json"

type UserJoined struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type UserLeft struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type CameraUpdated struct {
	Type     string    `json:"type"`
	UserID   string    `json:"userId"`
	Position []float64 `json:"position"`
	Rotation []float64 `json:"rotation"`
}

type AnnotationAdded struct {
	Type       string          `json:"type"`
	UserID     string          `json:"userId"`
	Annotation json.RawMessage `json:"annotation"`
}

type RoomState struct {
	Type      string   `json:"type"`
	ProjectID string   `json:"projectId"`
	Members   []string `json:"members"`
}

type Pong struct {
	Type string `json:"type"`
}

type Answer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type CandidateOut struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func NewUserJoined(uid string) UserJoined { return UserJoined{Type: TypeUserJoined, UserID: uid} }

func NewUserLeft(uid string) UserLeft { return UserLeft{Type: TypeUserLeft, UserID: uid} }

func NewCameraUpdated(uid string, pose *CameraUpdate) CameraUpdated {
	return CameraUpdated{
		Type:     TypeCameraUpdated,
		UserID:   uid,
		Position: pose.Position,
		Rotation: pose.Rotation,
	}
}

func NewAnnotationAdded(uid string, annotation json.RawMessage) AnnotationAdded {
	return AnnotationAdded{Type: TypeAnnotationAdded, UserID: uid, Annotation: annotation}
}

func NewRoomState(projectID string, members []string) RoomState {
	if members == nil {
		members = []string{}
	}
	return RoomState{Type: TypeRoomState, ProjectID: projectID, Members: members}
}

func NewPong() Pong { return Pong{Type: TypePong} }

func NewAnswer(sdp string) Answer { return Answer{Type: TypeAnswer, SDP: sdp} }

// Encode marshals a server frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MustEncode is for frames built from values that always marshal.
func MustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
