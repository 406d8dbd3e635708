package storage

import (
	"time"

	"github.com/dkeye/ReviewHub/internal/domain"
)

// The domain types hide secrets from JSON, so the key-value store keeps its
// own record shapes.

type userRecord struct {
	ID           domain.UserID `json:"id"`
	Email        string        `json:"email"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"password_hash"`
	Tier         domain.Tier   `json:"tier"`
	CreatedAt    time.Time     `json:"created_at"`
}

func toUserRecord(u *domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Tier:         u.Tier,
		CreatedAt:    u.CreatedAt,
	}
}

func (r userRecord) user() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Tier:         r.Tier,
		CreatedAt:    r.CreatedAt,
	}
}

type projectRecord struct {
	ID           domain.ProjectID     `json:"id"`
	OwnerID      domain.UserID        `json:"owner_id"`
	Name         string               `json:"name"`
	FileKey      string               `json:"file_key"`
	FileName     string               `json:"file_name"`
	Format       domain.ModelFormat   `json:"format"`
	SizeBytes    int64                `json:"size_bytes"`
	PasswordHash string               `json:"password_hash"`
	Status       domain.ProjectStatus `json:"status"`
	ExpiresAt    time.Time            `json:"expires_at"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func toProjectRecord(p *domain.Project) projectRecord {
	return projectRecord{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Name:         p.Name,
		FileKey:      p.FileKey,
		FileName:     p.FileName,
		Format:       p.Format,
		SizeBytes:    p.SizeBytes,
		PasswordHash: p.PasswordHash,
		Status:       p.Status,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (r projectRecord) project() *domain.Project {
	return &domain.Project{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Name:         r.Name,
		FileKey:      r.FileKey,
		FileName:     r.FileName,
		Format:       r.Format,
		SizeBytes:    r.SizeBytes,
		PasswordHash: r.PasswordHash,
		Status:       r.Status,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type portfolioRecord struct {
	ID          domain.PortfolioItemID `json:"id"`
	OwnerID     domain.UserID          `json:"owner_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	MediaKey    string                 `json:"media_key"`
	FileName    string                 `json:"file_name"`
	MediaType   domain.MediaType       `json:"media_type"`
	ProjectID   domain.ProjectID       `json:"project_id"`
	CreatedAt   time.Time              `json:"created_at"`
}

func toPortfolioRecord(it *domain.PortfolioItem) portfolioRecord {
	return portfolioRecord{
		ID:          it.ID,
		OwnerID:     it.OwnerID,
		Title:       it.Title,
		Description: it.Description,
		MediaKey:    it.MediaKey,
		FileName:    it.FileName,
		MediaType:   it.MediaType,
		ProjectID:   it.ProjectID,
		CreatedAt:   it.CreatedAt,
	}
}

func (r portfolioRecord) item() *domain.PortfolioItem {
	return &domain.PortfolioItem{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		MediaKey:    r.MediaKey,
		FileName:    r.FileName,
		MediaType:   r.MediaType,
		ProjectID:   r.ProjectID,
		CreatedAt:   r.CreatedAt,
	}
}
