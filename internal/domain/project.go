package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type ProjectID string

type ProjectStatus string

const (
	ProjectActive  ProjectStatus = "active"
	ProjectExpired ProjectStatus = "expired"
)

// ModelFormat is the lowercase file extension of an uploaded model, without the dot.
type ModelFormat string

const (
	FormatSTL ModelFormat = "stl"
	FormatGLB ModelFormat = "glb"
	FormatOBJ ModelFormat = "obj"
)

// ParseModelFormat validates by extension only; the viewer is the one parsing geometry.
func ParseModelFormat(filename string) (ModelFormat, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ModelFormat(ext) {
	case FormatSTL, FormatGLB, FormatOBJ:
		return ModelFormat(ext), nil
	}
	return "", ErrUnsupportedFormat
}

func (f ModelFormat) ContentType() string {
	switch f {
	case FormatGLB:
		return "model/gltf-binary"
	case FormatSTL:
		return "model/stl"
	case FormatOBJ:
		return "model/obj"
	}
	return "application/octet-stream"
}

type Project struct {
	ID           ProjectID     `json:"id"`
	OwnerID      UserID        `json:"owner_id"`
	Name         string        `json:"name"`
	FileKey      string        `json:"-"`
	FileName     string        `json:"file_name"`
	Format       ModelFormat   `json:"format"`
	SizeBytes    int64         `json:"size_bytes"`
	PasswordHash string        `json:"-"`
	Status       ProjectStatus `json:"status"`
	ExpiresAt    time.Time     `json:"expires_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Protected reports whether viewing requires a password.
func (p *Project) Protected() bool { return p.PasswordHash != "" }

// ExpiredAt is true once the link lifetime has passed, even before the sweeper marks it.
func (p *Project) ExpiredAt(now time.Time) bool {
	return p.Status == ProjectExpired || !now.Before(p.ExpiresAt)
}

// Room returns the live session room for this project.
func (p *Project) Room() RoomID { return RoomID(p.ID) }
