package http

import (
	"errors"
	nethttp "net/http"

	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, nethttp.StatusNotFound, "not_found"},
	{domain.ErrExpired, nethttp.StatusGone, "expired"},
	{domain.ErrPasswordRequired, nethttp.StatusUnauthorized, "password_required"},
	{domain.ErrBadCredentials, nethttp.StatusUnauthorized, "bad_credentials"},
	{domain.ErrForbidden, nethttp.StatusForbidden, "forbidden"},
	{domain.ErrLimitReached, nethttp.StatusForbidden, "limit_reached"},
	{domain.ErrConflict, nethttp.StatusConflict, "conflict"},
	{domain.ErrFileTooLarge, nethttp.StatusRequestEntityTooLarge, "file_too_large"},
	{domain.ErrUnsupportedFormat, nethttp.StatusUnsupportedMediaType, "unsupported_format"},
	{domain.ErrInvalid, nethttp.StatusBadRequest, "bad_request"},
	{domain.ErrEmailInvalid, nethttp.StatusBadRequest, "bad_request"},
	{domain.ErrUsernameEmpty, nethttp.StatusBadRequest, "bad_request"},
	{domain.ErrUsernameTooLong, nethttp.StatusBadRequest, "bad_request"},
	{domain.ErrUsernameInvalid, nethttp.StatusBadRequest, "bad_request"},
	{domain.ErrPasswordShort, nethttp.StatusBadRequest, "bad_request"},
	{gobreaker.ErrOpenState, nethttp.StatusServiceUnavailable, "unavailable"},
	{gobreaker.ErrTooManyRequests, nethttp.StatusServiceUnavailable, "unavailable"},
}

func statusFor(err error) (int, string) {
	var tooBig *nethttp.MaxBytesError
	if errors.As(err, &tooBig) {
		return nethttp.StatusRequestEntityTooLarge, "file_too_large"
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return nethttp.StatusInternalServerError, "internal"
}

// abortError is the single place domain errors become HTTP responses.
func abortError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == nethttp.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(nethttp.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
}
