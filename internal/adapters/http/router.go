package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/dkeye/ReviewHub/internal/adapters/signal"
	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/app/orch"
	"github.com/dkeye/ReviewHub/internal/app/portfolio"
	"github.com/dkeye/ReviewHub/internal/app/projects"
	"github.com/dkeye/ReviewHub/internal/config"
	"github.com/dkeye/ReviewHub/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Pinger is anything /healthz checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Orch      *orch.Orchestrator
	Users     *auth.Users
	Projects  *projects.Service
	Portfolio *portfolio.Service
	Records   Pinger
	Blobs     Pinger
	// Limiter guards login, register, upload and unlock; nil disables it.
	Limiter Limiter
}

type api struct {
	orch      *orch.Orchestrator
	users     *auth.Users
	projects  *projects.Service
	portfolio *portfolio.Service
	records   Pinger
	blobs     Pinger
	maxUpload int64
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("bad trusted proxies, using peer address")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(Metrics())
	r.Use(SecurityHeaders())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
		SameSite: nethttp.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())
	r.Use(SessionUser(d.Users))

	a := &api{
		orch:      d.Orch,
		users:     d.Users,
		projects:  d.Projects,
		portfolio: d.Portfolio,
		records:   d.Records,
		blobs:     d.Blobs,
		maxUpload: cfg.Projects.MaxUploadMB << 20,
	}
	if a.maxUpload <= 0 {
		a.maxUpload = domain.MaxFileBytes()
	}

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", a.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	apiGroup := r.Group("/api")

	ctrl := signal.NewSignalWSController(d.Orch, signal.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		SendBuffer:     cfg.SendBuffer,
		ICEServers:     cfg.WebRTC.ICEServers,
	})
	apiGroup.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("viewer", c.GetString(ctxClientToken)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	apiGroup.GET("/rooms", a.rooms)

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", RateLimit(d.Limiter, "register"), a.register)
	authGroup.POST("/login", RateLimit(d.Limiter, "login"), a.login)
	authGroup.POST("/logout", a.logout)
	authGroup.GET("/me", RequireUser(), a.me)

	proj := apiGroup.Group("/projects")
	proj.GET("/:id", a.getProject)
	proj.GET("/:id/file", a.downloadModel)
	proj.POST("/:id/unlock", RateLimit(d.Limiter, "unlock"), a.unlockProject)
	owned := proj.Group("", RequireUser())
	owned.POST("", RateLimit(d.Limiter, "upload"), a.uploadProject)
	owned.GET("", a.listProjects)
	owned.PATCH("/:id/share", a.updateSharing)
	owned.DELETE("/:id", a.deleteProject)

	pf := apiGroup.Group("/portfolio", RequireUser())
	pf.POST("", RateLimit(d.Limiter, "upload"), a.addPortfolioItem)
	pf.GET("", a.listPortfolio)
	pf.DELETE("/:id", a.deletePortfolioItem)

	apiGroup.GET("/gallery/:username", a.gallery)
	apiGroup.GET("/gallery/:username/:id/media", a.galleryMedia)

	return r
}

// WithCORS lets the listed front-end origins call the API with credentials.
func WithCORS(h nethttp.Handler, origins []string) nethttp.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
}

func (a *api) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	for name, p := range map[string]Pinger{"records": a.records, "blobs": a.blobs} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	if !healthy {
		c.JSON(nethttp.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (a *api) rooms(c *gin.Context) {
	rooms := a.orch.RoomsInfo()
	c.JSON(nethttp.StatusOK, gin.H{"rooms": rooms, "count": len(rooms)})
}
