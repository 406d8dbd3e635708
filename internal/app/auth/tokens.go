package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is a domain.ErrForbidden.
var ErrInvalidToken = fmt.Errorf("invalid view token: %w", domain.ErrForbidden)

const viewAudience = "reviewhub:view"

// ViewTokens signs short-lived grants to view one password-protected project.
type ViewTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewViewTokens(secret string, ttl time.Duration) (*ViewTokens, error) {
	if secret == "" {
		return nil, errors.New("view token secret is empty")
	}
	return &ViewTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue never outlives the project link itself.
func (t *ViewTokens) Issue(p *domain.Project) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	if p.ExpiresAt.Before(exp) {
		exp = p.ExpiresAt
	}
	if !exp.After(now) {
		return "", time.Time{}, domain.ErrExpired
	}
	claims := jwt.RegisteredClaims{
		ID:        passwordVersion(p),
		Subject:   string(p.ID),
		Audience:  jwt.ClaimStrings{viewAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and lifetime, and that the token was issued for p
// under its current password.
func (t *ViewTokens) Verify(raw string, p *domain.Project) error {
	if raw == "" {
		return domain.ErrPasswordRequired
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithAudience(viewAudience),
		jwt.WithTimeFunc(t.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject != string(p.ID) {
		return fmt.Errorf("%w: issued for another project", ErrInvalidToken)
	}
	if claims.ID != passwordVersion(p) {
		return fmt.Errorf("%w: project password changed", ErrInvalidToken)
	}
	return nil
}

// passwordVersion changes whenever the project password is set, changed or cleared.
func passwordVersion(p *domain.Project) string {
	sum := sha256.Sum256([]byte(p.PasswordHash))
	return hex.EncodeToString(sum[:8])
}
