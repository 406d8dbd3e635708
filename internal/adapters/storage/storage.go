// Package storage holds the record store drivers.
package storage

import (
	"context"
	"fmt"

	"github.com/dkeye/ReviewHub/internal/config"
	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/rs/zerolog/log"
)

// Open picks the driver named in cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (core.RecordStore, error) {
	log.Info().Str("module", "storage").Str("driver", cfg.Driver).Msg("opening record store")
	switch cfg.Driver {
	case "badger":
		return NewBadgerStore(cfg.Path)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
