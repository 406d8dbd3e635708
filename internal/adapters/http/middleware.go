package http

import (
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/dkeye/ReviewHub/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenCookie = "ct"
	sessionName       = "ReviewHubSessions"
	sessionUserKey    = "uid"

	ctxClientToken = "client_token"
	ctxUserID      = "user_id"
	ctxUser        = "user"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every visitor an anonymous viewer id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if _, err := uuid.Parse(token); err != nil {
			token = genClientToken()
			c.SetSameSite(nethttp.SameSiteLaxMode)
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set(ctxClientToken, token)
		c.Next()
	}
}

// RequestLogger writes one zerolog line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		ev := log.Info()
		switch {
		case path == "/healthz" || path == "/metrics":
			ev = log.Debug()
		case c.Writer.Status() >= 500:
			ev = log.Error()
		}
		ev.Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Msg("request completed")
	}
}

// Metrics labels requests by route template to keep cardinality bounded.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			h.Set("Content-Security-Policy", "default-src 'none'")
		}
		c.Next()
	}
}

// SessionUser resolves the session cookie to an account; anonymous requests pass through.
func SessionUser(users *auth.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		uid, _ := sess.Get(sessionUserKey).(string)
		if uid != "" {
			u, err := users.Get(c.Request.Context(), domain.UserID(uid))
			switch {
			case err == nil:
				c.Set(ctxUser, u)
				c.Set(ctxUserID, string(u.ID))
			default:
				log.Warn().Err(err).Str("module", "adapters.http").Str("uid", uid).Msg("dropping stale session")
				sess.Delete(sessionUserKey)
				_ = sess.Save()
			}
		}
		c.Next()
	}
}

func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(nethttp.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "login required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(ctxUser); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}
