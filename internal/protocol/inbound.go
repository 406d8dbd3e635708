package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

type envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	ProjectID string `json:"projectId" validate:"required,projectid"`
	Token     string `json:"token,omitempty"`
}

type LeaveRoom struct {
	ProjectID string `json:"projectId" validate:"required,projectid"`
}

type CameraUpdate struct {
	ProjectID string    `json:"projectId" validate:"required,projectid"`
	Position  []float64 `json:"position" validate:"required,len=3"`
	Rotation  []float64 `json:"rotation" validate:"required,min=3,max=4"`
}

type AnnotationAdd struct {
	ProjectID  string          `json:"projectId" validate:"required,projectid"`
	Annotation json.RawMessage `json:"annotation"`
}

type Ping struct{}

type Offer struct {
	SDP string `json:"sdp" validate:"required"`
}

type Candidate struct {
	Candidate     string  `json:"candidate" validate:"required"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("projectid", validProjectID)
	})
	return validate
}

// Decode parses one client frame into a pointer to its typed payload.
// Any failure is reported as a *Error with CodeBadPayload.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, BadPayload("malformed json")
	}

	var msg any
	switch env.Type {
	case TypeJoinRoom:
		msg = &JoinRoom{}
	case TypeLeaveRoom:
		msg = &LeaveRoom{}
	case TypeCameraUpdate:
		msg = &CameraUpdate{}
	case TypeAnnotationAdd:
		msg = &AnnotationAdd{}
	case TypePing:
		return &Ping{}, nil
	case TypeOffer:
		msg = &Offer{}
	case TypeCandidate:
		msg = &Candidate{}
	case "":
		return nil, BadPayload("missing type")
	default:
		return nil, BadPayload(fmt.Sprintf("unknown type %q", env.Type))
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, BadPayload(fmt.Sprintf("%s: invalid fields", env.Type))
	}
	if err := validatorInstance().Struct(msg); err != nil {
		return nil, BadPayload(fmt.Sprintf("%s: %s", env.Type, describe(err)))
	}
	if a, ok := msg.(*AnnotationAdd); ok && isNull(a.Annotation) {
		return nil, BadPayload("annotation-add: annotation is required")
	}
	return msg, nil
}

// validProjectID wants a non-blank key without surrounding whitespace.
func validProjectID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return id != "" && strings.TrimSpace(id) == id && len(id) <= MaxProjectIDLen
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag())
	}
	return "invalid"
}
