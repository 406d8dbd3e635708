package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type PortfolioItemID string

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaModel MediaType = "model"
)

var mediaByExt = map[string]MediaType{
	".png":  MediaImage,
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".mp4":  MediaVideo,
	".webm": MediaVideo,
	".stl":  MediaModel,
	".glb":  MediaModel,
	".obj":  MediaModel,
}

func ParseMediaType(filename string) (MediaType, error) {
	if mt, ok := mediaByExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt, nil
	}
	return "", ErrUnsupportedFormat
}

type PortfolioItem struct {
	ID          PortfolioItemID `json:"id"`
	OwnerID     UserID          `json:"owner_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	MediaKey    string          `json:"-"`
	FileName    string          `json:"file_name"`
	MediaType   MediaType       `json:"media_type"`
	ProjectID   ProjectID       `json:"project_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
