package core

import (
	"context"
	"io"
	"time"

	"github.com/dkeye/ReviewHub/internal/domain"
)

// Repositories return domain.ErrNotFound for missing records and
// domain.ErrConflict for uniqueness violations.

type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type ProjectRepository interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	GetProject(ctx context.Context, id domain.ProjectID) (*domain.Project, error)
	UpdateProject(ctx context.Context, p *domain.Project) error
	DeleteProject(ctx context.Context, id domain.ProjectID) error
	ListProjectsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Project, error)
	CountActiveProjects(ctx context.Context, owner domain.UserID, now time.Time) (int, error)
	// ExpireProjects flips every active project with expires_at <= now to expired.
	ExpireProjects(ctx context.Context, now time.Time) ([]domain.ProjectID, error)
}

type PortfolioRepository interface {
	CreatePortfolioItem(ctx context.Context, it *domain.PortfolioItem) error
	GetPortfolioItem(ctx context.Context, id domain.PortfolioItemID) (*domain.PortfolioItem, error)
	DeletePortfolioItem(ctx context.Context, id domain.PortfolioItemID) error
	ListPortfolioByOwner(ctx context.Context, owner domain.UserID) ([]domain.PortfolioItem, error)
}

// RecordStore is what a storage driver provides.
type RecordStore interface {
	UserRepository
	ProjectRepository
	PortfolioRepository
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore persists uploaded files under generated keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
