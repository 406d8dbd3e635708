package projects

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is a supervised service that expires share links on a tick.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	name     string
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, name: "expiry-sweeper"}
}

func (w *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	if _, err := w.svc.ExpireDue(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("module", "app.projects").Msg("expiry sweep failed")
	}
}

func (w *Sweeper) String() string {
	return w.name
}
