// Package portfolio keeps a user's showcase items and serves the public gallery.
package portfolio

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 2000
)

type Service struct {
	repo     core.PortfolioRepository
	users    core.UserRepository
	projects core.ProjectRepository
	blobs    core.BlobStore
	now      func() time.Time
}

func NewService(repo core.PortfolioRepository, users core.UserRepository, projects core.ProjectRepository, blobs core.BlobStore) *Service {
	return &Service{repo: repo, users: users, projects: projects, blobs: blobs, now: time.Now}
}

type AddInput struct {
	Title       string
	Description string
	FileName    string
	Body        io.Reader
	// ProjectID optionally links the item to one of the owner's projects.
	ProjectID domain.ProjectID
}

func (s *Service) Add(ctx context.Context, owner *domain.User, in AddInput) (*domain.PortfolioItem, error) {
	mt, err := domain.ParseMediaType(in.FileName)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > MaxTitleLen {
		return nil, fmt.Errorf("title must be 1..%d chars: %w", MaxTitleLen, domain.ErrInvalid)
	}
	if len(in.Description) > MaxDescriptionLen {
		return nil, fmt.Errorf("description longer than %d: %w", MaxDescriptionLen, domain.ErrInvalid)
	}
	if in.ProjectID != "" {
		p, err := s.projects.GetProject(ctx, in.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("linked project: %w", err)
		}
		if p.OwnerID != owner.ID {
			return nil, fmt.Errorf("linked project: %w", domain.ErrForbidden)
		}
	}

	limit := domain.LimitsFor(owner.Tier).MaxFileBytes
	it := &domain.PortfolioItem{
		ID:          domain.PortfolioItemID(ulid.Make().String()),
		OwnerID:     owner.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		FileName:    filepath.Base(in.FileName),
		MediaType:   mt,
		ProjectID:   in.ProjectID,
		CreatedAt:   s.now().UTC(),
	}
	it.MediaKey = "portfolio/" + string(it.ID) + strings.ToLower(filepath.Ext(in.FileName))

	n, err := s.blobs.Put(ctx, it.MediaKey, io.LimitReader(in.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("store media: %w", err)
	}
	if n == 0 || n > limit {
		s.dropBlob(ctx, it.MediaKey)
		if n == 0 {
			return nil, fmt.Errorf("empty file: %w", domain.ErrInvalid)
		}
		return nil, fmt.Errorf("over %d bytes: %w", limit, domain.ErrFileTooLarge)
	}
	if err := s.repo.CreatePortfolioItem(ctx, it); err != nil {
		s.dropBlob(ctx, it.MediaKey)
		return nil, err
	}
	log.Info().Str("module", "app.portfolio").Str("item_id", string(it.ID)).Str("media", string(mt)).Msg("portfolio item added")
	return it, nil
}

func (s *Service) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Warn().Err(err).Str("module", "app.portfolio").Str("key", key).Msg("blob cleanup failed")
	}
}

func (s *Service) List(ctx context.Context, owner domain.UserID) ([]domain.PortfolioItem, error) {
	return s.repo.ListPortfolioByOwner(ctx, owner)
}

func (s *Service) Delete(ctx context.Context, owner *domain.User, id domain.PortfolioItemID) error {
	it, err := s.repo.GetPortfolioItem(ctx, id)
	if err != nil {
		return err
	}
	if it.OwnerID != owner.ID {
		return domain.ErrForbidden
	}
	if err := s.repo.DeletePortfolioItem(ctx, id); err != nil {
		return err
	}
	s.dropBlob(ctx, it.MediaKey)
	return nil
}

// Gallery is the public face of a user: profile plus every portfolio item.
type Gallery struct {
	Username string                 `json:"username"`
	Items    []domain.PortfolioItem `json:"items"`
}

func (s *Service) Gallery(ctx context.Context, username string) (*Gallery, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListPortfolioByOwner(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PortfolioItem{}
	}
	return &Gallery{Username: u.Username, Items: items}, nil
}

// OpenMedia streams an item only when it belongs to the named user.
func (s *Service) OpenMedia(ctx context.Context, username string, id domain.PortfolioItemID) (io.ReadCloser, *domain.PortfolioItem, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	it, err := s.repo.GetPortfolioItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if it.OwnerID != u.ID {
		return nil, nil, domain.ErrNotFound
	}
	rc, err := s.blobs.Open(ctx, it.MediaKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, it, nil
}
