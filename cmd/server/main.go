package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/ReviewHub/internal/adapters/blob"
	router "github.com/dkeye/ReviewHub/internal/adapters/http"
	"github.com/dkeye/ReviewHub/internal/adapters/storage"
	"github.com/dkeye/ReviewHub/internal/app"
	"github.com/dkeye/ReviewHub/internal/app/auth"
	"github.com/dkeye/ReviewHub/internal/app/orch"
	"github.com/dkeye/ReviewHub/internal/app/portfolio"
	"github.com/dkeye/ReviewHub/internal/app/projects"
	"github.com/dkeye/ReviewHub/internal/config"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/dkeye/ReviewHub/internal/supervisor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	records, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer records.Close()

	fsBlobs, err := blob.NewFSStore(cfg.Blob.Dir)
	if err != nil {
		return err
	}
	blobs := blob.NewBreakerStore(fsBlobs, blob.DefaultBreakerSettings())

	tokens, err := auth.NewViewTokens(cfg.Secret, cfg.Auth.ViewTokenTTL)
	if err != nil {
		return err
	}
	policy, err := app.PolicyFor(cfg.Relay.Backpressure)
	if err != nil {
		return err
	}

	relay := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRoomManager(),
		Policy:   policy,
		Options: orch.Options{
			RequireJoin: cfg.Relay.RequireJoin,
			SingleRoom:  cfg.Relay.SingleRoom,
			Rate:        rate.Limit(cfg.Relay.Rate),
			Burst:       cfg.Relay.Burst,
		},
	}

	users := auth.NewUsers(records)
	projectSvc := projects.NewService(records, blobs, tokens, relay, projects.Options{
		DefaultExpiry:  cfg.Projects.DefaultExpiry,
		MaxUploadBytes: cfg.Projects.MaxUploadMB << 20,
	})
	if cfg.Relay.Access == "project" {
		relay.Guard = projectSvc
	}
	portfolioSvc := portfolio.NewService(records, records, records, blobs)

	var limiter router.Limiter = router.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if cfg.Redis.URL != "" {
		rl, err := router.NewRedisLimiter(ctx, cfg.Redis.URL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("redis unavailable, using in-process rate limiter")
		} else {
			defer rl.Close()
			limiter = rl
		}
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:      relay,
		Users:     users,
		Projects:  projectSvc,
		Portfolio: portfolioSvc,
		Records:   records,
		Blobs:     blobs,
		Limiter:   limiter,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.WithCORS(r, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(srv, 5*time.Second))
	tree.AddJobService(projects.NewSweeper(projectSvc, cfg.Projects.SweepInterval))

	log.Info().Str("addr", addr).
		Str("access", cfg.Relay.Access).
		Str("backpressure", cfg.Relay.Backpressure).
		Msg("ReviewHub server started")

	err = <-tree.ServeBackground(ctx)
	log.Info().Msg("Shutting down")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
