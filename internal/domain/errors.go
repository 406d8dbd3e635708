package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrExpired           = errors.New("link expired")
	ErrLimitReached      = errors.New("tier limit reached")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrBadCredentials    = errors.New("invalid credentials")
	ErrPasswordRequired  = errors.New("password required")
	ErrConflict          = errors.New("already exists")
	ErrInvalid           = errors.New("invalid input")
)
