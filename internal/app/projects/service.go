// Package projects manages uploaded models and their share links.
package projects

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

const MaxNameLen = 200

// RoomEvictor closes the live review session of a project.
type RoomEvictor interface {
	EvictRoom(id domain.RoomID)
}

type Options struct {
	DefaultExpiry time.Duration
	// MaxUploadBytes caps every tier; zero means tier limits only.
	MaxUploadBytes int64
}

type Service struct {
	repo   core.ProjectRepository
	blobs  core.BlobStore
	tokens *auth.ViewTokens
	rooms  RoomEvictor
	opts   Options
	now    func() time.Time
}

func NewService(repo core.ProjectRepository, blobs core.BlobStore, tokens *auth.ViewTokens, rooms RoomEvictor, opts Options) *Service {
	if opts.DefaultExpiry <= 0 {
		opts.DefaultExpiry = 72 * time.Hour
	}
	return &Service{repo: repo, blobs: blobs, tokens: tokens, rooms: rooms, opts: opts, now: time.Now}
}

type UploadInput struct {
	Name     string
	FileName string
	Body     io.Reader
	Password string
	// ExpiresIn of zero selects the default lifetime.
	ExpiresIn time.Duration
}

func (s *Service) expiry(limits domain.Limits, in time.Duration) (time.Duration, error) {
	if in < 0 {
		return 0, fmt.Errorf("expires_in must be positive: %w", domain.ErrInvalid)
	}
	if in == 0 {
		in = s.opts.DefaultExpiry
	}
	return min(in, limits.MaxExpiry), nil
}

func (s *Service) maxBytes(limits domain.Limits) int64 {
	if s.opts.MaxUploadBytes > 0 {
		return min(limits.MaxFileBytes, s.opts.MaxUploadBytes)
	}
	return limits.MaxFileBytes
}

// Upload stores the model and opens its share link.
func (s *Service) Upload(ctx context.Context, owner *domain.User, in UploadInput) (*domain.Project, error) {
	format, err := domain.ParseModelFormat(in.FileName)
	if err != nil {
		return nil, err
	}
	limits := domain.LimitsFor(owner.Tier)
	if in.Password != "" && !limits.AllowPassword {
		return nil, fmt.Errorf("password protection on %s tier: %w", owner.Tier, domain.ErrForbidden)
	}
	ttl, err := s.expiry(limits, in.ExpiresIn)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(in.FileName), filepath.Ext(in.FileName))
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("name longer than %d: %w", MaxNameLen, domain.ErrInvalid)
	}

	now := s.now().UTC()
	active, err := s.repo.CountActiveProjects(ctx, owner.ID, now)
	if err != nil {
		return nil, err
	}
	if active >= limits.MaxProjects {
		return nil, fmt.Errorf("%d active projects: %w", active, domain.ErrLimitReached)
	}

	p := &domain.Project{
		ID:        domain.ProjectID(ulid.Make().String()),
		OwnerID:   owner.ID,
		Name:      name,
		FileName:  filepath.Base(in.FileName),
		Format:    format,
		Status:    domain.ProjectActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.FileKey = "models/" + string(p.ID) + "." + string(format)
	if in.Password != "" {
		if err := domain.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
		if p.PasswordHash, err = auth.HashPassword(in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	limit := s.maxBytes(limits)
	n, err := s.blobs.Put(ctx, p.FileKey, io.LimitReader(in.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("store model: %w", err)
	}
	if n > limit || n == 0 {
		s.dropBlob(ctx, p.FileKey)
		if n == 0 {
			return nil, fmt.Errorf("empty file: %w", domain.ErrInvalid)
		}
		return nil, fmt.Errorf("over %d bytes: %w", limit, domain.ErrFileTooLarge)
	}
	p.SizeBytes = n

	if err := s.repo.CreateProject(ctx, p); err != nil {
		s.dropBlob(ctx, p.FileKey)
		return nil, err
	}
	metrics.ProjectsUploaded.WithLabelValues(string(format)).Inc()
	log.Info().Str("module", "app.projects").
		Str("project_id", string(p.ID)).
		Str("owner", string(owner.ID)).
		Int64("bytes", n).
		Time("expires_at", p.ExpiresAt).
		Msg("project uploaded")
	return p, nil
}

func (s *Service) dropBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Warn().Err(err).Str("module", "app.projects").Str("key", key).Msg("blob cleanup failed")
	}
}

// Get returns a live project; expired links report domain.ErrExpired.
func (s *Service) Get(ctx context.Context, id domain.ProjectID) (*domain.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ExpiredAt(s.now()) {
		return nil, domain.ErrExpired
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, owner domain.UserID) ([]domain.Project, error) {
	return s.repo.ListProjectsByOwner(ctx, owner)
}

func (s *Service) owned(ctx context.Context, owner *domain.User, id domain.ProjectID) (*domain.Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != owner.ID {
		return nil, domain.ErrForbidden
	}
	return p, nil
}

type SharingInput struct {
	Password      *string
	ClearPassword bool
	ExpiresIn     *time.Duration
}

// UpdateSharing changes the password or extends the link. Extending an
// expired link reactivates it if the owner is still under the project limit.
func (s *Service) UpdateSharing(ctx context.Context, owner *domain.User, id domain.ProjectID, in SharingInput) (*domain.Project, error) {
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	limits := domain.LimitsFor(owner.Tier)
	now := s.now().UTC()

	if in.ExpiresIn != nil {
		ttl, err := s.expiry(limits, *in.ExpiresIn)
		if err != nil {
			return nil, err
		}
		if p.ExpiredAt(now) {
			active, err := s.repo.CountActiveProjects(ctx, owner.ID, now)
			if err != nil {
				return nil, err
			}
			if active >= limits.MaxProjects {
				return nil, fmt.Errorf("%d active projects: %w", active, domain.ErrLimitReached)
			}
		}
		p.ExpiresAt = now.Add(ttl)
		p.Status = domain.ProjectActive
	} else if p.ExpiredAt(now) {
		return nil, domain.ErrExpired
	}

	oldHash := p.PasswordHash
	switch {
	case in.ClearPassword:
		p.PasswordHash = ""
	case in.Password != nil:
		if !limits.AllowPassword {
			return nil, fmt.Errorf("password protection on %s tier: %w", owner.Tier, domain.ErrForbidden)
		}
		if err := domain.ValidatePassword(*in.Password); err != nil {
			return nil, err
		}
		if p.PasswordHash, err = auth.HashPassword(*in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}
	p.UpdatedAt = now
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return nil, err
	}
	// Viewers admitted under the old sharing terms must unlock again.
	if oldHash != p.PasswordHash && s.rooms != nil {
		s.rooms.EvictRoom(p.Room())
	}
	return p, nil
}

// Delete removes the record and blob and ends any live review of the project.
func (s *Service) Delete(ctx context.Context, owner *domain.User, id domain.ProjectID) error {
	p, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.dropBlob(ctx, p.FileKey)
	if s.rooms != nil {
		s.rooms.EvictRoom(p.Room())
	}
	log.Info().Str("module", "app.projects").Str("project_id", string(id)).Msg("project deleted")
	return nil
}

// Unlock trades the project password for a view token.
func (s *Service) Unlock(ctx context.Context, id domain.ProjectID, password string) (string, time.Time, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if p.Protected() && !auth.CheckPassword(p.PasswordHash, password) {
		return "", time.Time{}, domain.ErrBadCredentials
	}
	return s.tokens.Issue(p)
}

// Authorize decides whether a viewer holding token may see the project.
func (s *Service) Authorize(ctx context.Context, id domain.ProjectID, token string) (*domain.Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Protected() {
		if err := s.tokens.Verify(token, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AllowJoin admits relay members only into rooms of live projects.
func (s *Service) AllowJoin(ctx context.Context, room domain.RoomID, token string) error {
	_, err := s.Authorize(ctx, domain.ProjectID(room), token)
	return err
}

// OpenModel streams the model to its owner, or to a viewer passing Authorize.
// viewer may be nil for anonymous requests.
func (s *Service) OpenModel(ctx context.Context, id domain.ProjectID, viewer *domain.User, token string) (io.ReadCloser, *domain.Project, error) {
	var p *domain.Project
	var err error
	if viewer != nil {
		p, err = s.repo.GetProject(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if p.OwnerID != viewer.ID {
			p = nil
		}
	}
	if p == nil {
		if p, err = s.Authorize(ctx, id, token); err != nil {
			return nil, nil, err
		}
	}
	rc, err := s.blobs.Open(ctx, p.FileKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, p, nil
}

// ExpireDue marks overdue projects expired and evicts their rooms.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireProjects(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if s.rooms != nil {
			s.rooms.EvictRoom(domain.RoomID(id))
		}
	}
	if len(ids) > 0 {
		metrics.ProjectsExpired.Add(float64(len(ids)))
		log.Info().Str("module", "app.projects").Int("count", len(ids)).Msg("projects expired")
	}
	return len(ids), nil
}
