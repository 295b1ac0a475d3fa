// Package cache persists raw source results per (address, source) pair so
// repeated lookups do not re-scrape upstream sites.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"property-hub/internal/models"
)

// Store holds at most one entry per (normalized address, source) key.
//
// Get never fails: a storage error is logged and reported as a miss.
// Concurrent Set calls for the same key race; the last Set to complete wins.
// No backend ever exposes a partially written entry.
type Store interface {
	Get(ctx context.Context, addr models.Address, source models.SourceID) (*models.CacheEntry, bool)
	Set(ctx context.Context, addr models.Address, source models.SourceID, data models.RawResult) error
	Has(ctx context.Context, addr models.Address, source models.SourceID) bool
	Delete(ctx context.Context, addr models.Address, source models.SourceID) error
	Clear(ctx context.Context) error
	ClearExpired(ctx context.Context) (int, error)
}

// Options are shared by every backend
type Options struct {
	// TTL is the maximum age of a fresh entry. Zero or less disables expiry.
	TTL time.Duration
	// Now is the clock used for timestamps and expiry checks
	Now    func() time.Time
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Config selects and configures a backend for Open
type Config struct {
	Backend     string // memory, file, sqlite, postgres
	Dir         string // file backend directory
	DBPath      string // sqlite database path
	DatabaseURL string // postgres connection string
	Options
}

// Open creates the configured backend. The returned close function releases
// any underlying connections.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.Options), noop, nil
	case "file":
		s, err := NewFileStore(cfg.Dir, cfg.Options)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.DBPath, cfg.Options)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Options)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
