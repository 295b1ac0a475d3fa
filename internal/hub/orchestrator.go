// Package hub assembles property data for one address by walking the
// configured sources in priority order, reusing cached results where it can.
package hub

import (
	"context"
	"fmt"
	"log/slog"

	"property-hub/internal/cache"
	"property-hub/internal/models"
	"property-hub/internal/scraper"
)

// SourceError is a failure of one source: its adapter could not fetch the
// address or its parser could not read the result. It is never fatal to a
// lookup.
type SourceError struct {
	Source models.SourceID
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retrieval is a raw result and whether it came from the cache
type Retrieval struct {
	Data   models.RawResult
	Cached bool
}

// FetchOptions controls a single FetchOrRetrieve call
type FetchOptions struct {
	// ForceRefresh skips the cache read. Fresh results are still written.
	ForceRefresh bool
	Logger       *slog.Logger
}

// FetchOrRetrieve returns the cached result for (addr, adapter source) when
// one is fresh, and otherwise fetches it from the adapter and caches it.
// Failures are returned as *SourceError and never cached. It never retries.
func FetchOrRetrieve(ctx context.Context, store cache.Store, addr models.Address, adapter scraper.Adapter, opts FetchOptions) (Retrieval, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	source := adapter.Source()

	if !opts.ForceRefresh {
		if entry, ok := store.Get(ctx, addr, source); ok {
			logger.Debug("Cache hit", "source", source, "cached_at", entry.Timestamp)
			return Retrieval{Data: entry.Data, Cached: true}, nil
		}
	}

	res := adapter.Fetch(ctx, addr)
	if !res.OK() {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("adapter returned no data")
		}
		return Retrieval{}, &SourceError{Source: source, Err: err}
	}

	if err := store.Set(ctx, addr, source, *res.Data); err != nil {
		logger.Warn("Failed to cache result", "source", source, "error", err)
	}
	return Retrieval{Data: *res.Data}, nil
}
