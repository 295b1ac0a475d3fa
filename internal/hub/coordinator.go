package hub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"property-hub/internal/cache"
	"property-hub/internal/models"
	"property-hub/internal/scraper"
)

// DefaultRequiredFields is the property details block of the appraisal report
var DefaultRequiredFields = []models.Field{
	models.FieldYearBuilt,
	models.FieldLandArea,
	models.FieldFloorArea,
	models.FieldPropertyType,
	models.FieldCouncil,
	models.FieldEstimatedValue,
}

// Options controls a single lookup
type Options struct {
	EnableFallbacks bool
	// MaxFallbacks bounds the sources consulted after the primary
	MaxFallbacks int
	ForceRefresh bool
	// RequiredFields overrides the coordinator's required set when not empty
	RequiredFields []models.Field
}

// DefaultOptions enables up to three fallbacks and reads the cache
func DefaultOptions() Options {
	return Options{
		EnableFallbacks: true,
		MaxFallbacks:    3,
	}
}

// Sources resolves a source ID to its adapter. *scraper.Registry satisfies it.
type Sources interface {
	Get(id models.SourceID) (scraper.Source, bool)
}

// Config configures a Coordinator
type Config struct {
	// RequiredFields decides when the chain may stop early. Defaults to
	// DefaultRequiredFields.
	RequiredFields []models.Field
	// Priority is the source order. Defaults to models.Priority.
	Priority []models.SourceID
	// Enricher fills derived fields after the chain. Optional.
	Enricher *Enricher
}

// Coordinator walks the sources in priority order for one address until the
// required fields are filled, the fallbacks are used up or the sources run
// out. It is safe for concurrent use.
type Coordinator struct {
	store    cache.Store
	sources  Sources
	required []models.Field
	priority []models.SourceID
	enricher *Enricher
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator over store and sources
func NewCoordinator(store cache.Store, sources Sources, cfg Config, logger *slog.Logger) *Coordinator {
	if len(cfg.RequiredFields) == 0 {
		cfg.RequiredFields = DefaultRequiredFields
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = models.Priority
	}
	return &Coordinator{
		store:    store,
		sources:  sources,
		required: cfg.RequiredFields,
		priority: cfg.Priority,
		enricher: cfg.Enricher,
		logger:   logger.With("component", "coordinator"),
	}
}

// RequiredFields returns the default required set
func (c *Coordinator) RequiredFields() []models.Field {
	return append([]models.Field(nil), c.required...)
}

// Attempt records one source consulted during a lookup
type Attempt struct {
	Source     models.SourceID `json:"source"`
	Cached     bool            `json:"cached"`
	Fields     []models.Field  `json:"fields,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Report is the outcome of a lookup
type Report struct {
	RequestID string              `json:"request_id"`
	Address   models.Address      `json:"address"`
	Info      models.PropertyInfo `json:"property"`
	// Provenance names the source that supplied each populated field
	Provenance map[models.Field]models.SourceID `json:"provenance"`
	Attempts   []Attempt                        `json:"attempts"`
	// Missing lists required fields no source supplied
	Missing []models.Field `json:"missing"`
}

// GetPropertyData returns everything the sources know about addressText.
// Only an invalid address or a cancelled context is an error; missing
// fields are left null.
func (c *Coordinator) GetPropertyData(ctx context.Context, addressText string, opts Options) (models.PropertyInfo, error) {
	report, err := c.Lookup(ctx, addressText, opts)
	if err != nil {
		return models.PropertyInfo{}, err
	}
	return report.Info, nil
}

// Lookup runs the fallback chain for addressText and reports which source
// supplied each field. A cancelled context stops the chain before the next
// source and returns the partial report with the context's error.
func (c *Coordinator) Lookup(ctx context.Context, addressText string, opts Options) (*Report, error) {
	addr, err := models.ParseAddress(addressText)
	if err != nil {
		return nil, err
	}

	required := c.required
	if len(opts.RequiredFields) > 0 {
		required = opts.RequiredFields
	}

	report := &Report{
		RequestID:  uuid.NewString(),
		Address:    addr,
		Provenance: make(map[models.Field]models.SourceID),
		Attempts:   []Attempt{},
	}
	logger := c.logger.With("request_id", report.RequestID, "address", addr.Key())
	logger.Info("Looking up property", "fallbacks", opts.EnableFallbacks, "max_fallbacks", opts.MaxFallbacks, "refresh", opts.ForceRefresh)

	var chain []scraper.Source
	for _, id := range c.priority {
		if src, ok := c.sources.Get(id); ok {
			chain = append(chain, src)
		}
	}
	if len(chain) == 0 {
		logger.Warn("No sources registered")
	}

	missing := MissingFields(report.Info, required)
	fallbacks := 0
	for i, src := range chain {
		if i > 0 {
			if !opts.EnableFallbacks || len(missing) == 0 || fallbacks >= opts.MaxFallbacks {
				break
			}
			fallbacks++
		}
		if err := ctx.Err(); err != nil {
			report.Missing = missingOrEmpty(report.Info, required)
			return report, err
		}

		attempt := c.consult(ctx, logger, addr, src, opts.ForceRefresh, report)
		report.Attempts = append(report.Attempts, attempt)
		missing = MissingFields(report.Info, required)
	}

	if c.enricher != nil {
		enrichOpts := FetchOptions{ForceRefresh: opts.ForceRefresh, Logger: logger}
		for _, f := range c.enricher.Enrich(ctx, c.store, addr, &report.Info, enrichOpts) {
			report.Provenance[f] = Derived
		}
	}

	report.Missing = missingOrEmpty(report.Info, required)
	logger.Info("Lookup complete",
		"sources", len(report.Attempts),
		"populated", len(report.Info.Populated()),
		"missing", len(report.Missing),
	)
	return report, nil
}

// missingOrEmpty is MissingFields with a non-nil result, so reports always
// encode "missing" as a list
func missingOrEmpty(info models.PropertyInfo, required []models.Field) []models.Field {
	if missing := MissingFields(info, required); missing != nil {
		return missing
	}
	return []models.Field{}
}

// consult fetches, parses and merges one source into the report
func (c *Coordinator) consult(ctx context.Context, logger *slog.Logger, addr models.Address, src scraper.Source, refresh bool, report *Report) Attempt {
	id := src.Source()
	attempt := Attempt{Source: id}
	start := time.Now()

	ret, err := FetchOrRetrieve(ctx, c.store, addr, src, FetchOptions{ForceRefresh: refresh, Logger: logger})
	if err != nil {
		attempt.Error = err.Error()
		level := slog.LevelWarn
		if errors.Is(err, scraper.ErrNotFound) {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "Source failed", "source", id, "error", err)
		attempt.DurationMs = time.Since(start).Milliseconds()
		return attempt
	}
	attempt.Cached = ret.Cached

	info, err := src.Parse(ret.Data)
	if err != nil {
		perr := &SourceError{Source: id, Err: err}
		attempt.Error = perr.Error()
		logger.Warn("Failed to parse source result", "source", id, "cached", ret.Cached, "error", err)
		attempt.DurationMs = time.Since(start).Milliseconds()
		return attempt
	}

	attempt.Fields = mergeInto(&report.Info, info, id, report.Provenance)
	attempt.DurationMs = time.Since(start).Milliseconds()
	logger.Debug("Source merged", "source", id, "cached", ret.Cached, "fields", len(attempt.Fields))
	return attempt
}
