// Package scraper holds one adapter per upstream property data source. An
// adapter fetches raw markup or structured data for a single address; its
// parser turns that raw result into a partial models.PropertyInfo.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"property-hub/internal/models"
)

var (
	// ErrNotFound means the source has no record for the address
	ErrNotFound = errors.New("property not found")
	// ErrBlocked means the source served a bot protection challenge
	ErrBlocked = errors.New("blocked by bot protection")
)

// Adapter fetches data for one address from exactly one source. It never
// consults the cache and reports ordinary failures through the result.
type Adapter interface {
	Source() models.SourceID
	Fetch(ctx context.Context, addr models.Address) models.ScraperResult
}

// Parser extracts whatever fields it can from a raw result
type Parser interface {
	Parse(raw models.RawResult) (models.PropertyInfo, error)
}

// Source is an adapter together with the parser for its raw results
type Source interface {
	Adapter
	Parser
}

// Config holds adapter settings
type Config struct {
	// Timeout bounds a single fetch, including browser rendering
	Timeout time.Duration
	// RequestsPerSecond paces HTTP requests per adapter
	RequestsPerSecond float64
	Disabled          []models.SourceID

	CoreLogicAPIKey   string
	CoreLogicBaseURL  string
	DomainAPIKey      string
	ScrapingBeeAPIKey string
	Headless          bool
}

// DefaultConfig returns default adapter settings
func DefaultConfig() Config {
	return Config{
		Timeout:           45 * time.Second,
		RequestsPerSecond: 0.5,
		CoreLogicBaseURL:  "https://api-uat.corelogic.asia",
		Headless:          true,
	}
}

// Registry maps source IDs to their adapters
type Registry struct {
	sources map[models.SourceID]Source
	closers []func()
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[models.SourceID]Source)}
}

// NewDefaultRegistry builds every source not disabled in cfg
func NewDefaultRegistry(cfg Config, logger *slog.Logger) *Registry {
	r := NewRegistry()
	enabled := func(id models.SourceID) bool { return !slices.Contains(cfg.Disabled, id) }

	if enabled(models.SourceCoreLogic) {
		if cfg.CoreLogicAPIKey == "" {
			logger.Warn("CoreLogic API key not set, source disabled")
		} else {
			r.Register(NewCoreLogicAdapter(cfg, logger))
		}
	}
	if enabled(models.SourceDomain) {
		r.Register(NewDomainAdapter(cfg, logger))
	}
	if enabled(models.SourceREA) {
		rea := NewREAAdapter(cfg, logger)
		r.Register(rea)
		r.closers = append(r.closers, rea.Close)
	}
	if enabled(models.SourceMicroburbs) {
		r.Register(NewMicroburbsAdapter(cfg, logger))
	}
	if enabled(models.SourcePropertyCom) {
		r.Register(NewPropertyComAdapter(cfg, logger))
	}
	if enabled(models.SourcePropertyValue) {
		r.Register(NewPropertyValueAdapter(cfg, logger))
	}

	return r
}

// Register adds or replaces the source for its ID
func (r *Registry) Register(s Source) {
	r.sources[s.Source()] = s
}

// Get returns the source registered for id
func (r *Registry) Get(id models.SourceID) (Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}

// Enabled returns the registered IDs in priority order
func (r *Registry) Enabled() []models.SourceID {
	var out []models.SourceID
	for _, id := range models.Priority {
		if _, ok := r.sources[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Close releases browser sessions and other adapter resources
func (r *Registry) Close() {
	for _, c := range r.closers {
		c()
	}
}

// withTimeout bounds fetch to d and wraps any error with the source name
func withTimeout(ctx context.Context, d time.Duration, source models.SourceID, fetch func(ctx context.Context) (models.RawResult, error)) models.ScraperResult {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	raw, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.Failure(fmt.Errorf("%s: timed out after %s: %w", source, d, err))
		}
		return models.Failure(fmt.Errorf("%s: %w", source, err))
	}
	if raw.FetchedAt.IsZero() {
		raw.FetchedAt = time.Now()
	}
	return models.Success(raw)
}
