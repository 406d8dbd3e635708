// Package auth owns accounts, passwords and signed view tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Users struct {
	repo core.UserRepository
}

func NewUsers(repo core.UserRepository) *Users {
	return &Users{repo: repo}
}

// Register creates a free-tier account. Email and username must both be unused.
func (s *Users) Register(ctx context.Context, email, username, password string) (*domain.User, error) {
	if err := domain.ValidatePassword(password); err != nil {
		return nil, err
	}
	u, err := domain.NewUser(email, username)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUserByUsername(ctx, u.Username); err == nil {
		return nil, fmt.Errorf("username %q: %w", u.Username, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u.PasswordHash, err = HashPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	metrics.UsersRegistered.Inc()
	log.Info().Str("module", "app.auth").Str("user_id", string(u.ID)).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Login never tells an unknown email apart from a wrong password.
func (s *Users) Login(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, domain.ErrBadCredentials
	}
	return u, nil
}

func (s *Users) Get(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Users) ByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.repo.GetUserByUsername(ctx, username)
}
