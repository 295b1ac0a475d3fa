// Package app wires configuration, logging, the cache, the sources and the
// coordinator together for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fluent/fluent-logger-golang/fluent"

	"property-hub/internal/cache"
	"property-hub/internal/config"
	"property-hub/internal/geo"
	"property-hub/internal/hub"
	"property-hub/internal/logging"
	"property-hub/internal/scraper"
)

// App holds the wired components
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       cache.Store
	Sources     *scraper.Registry
	Coordinator *hub.Coordinator

	closeStore   func() error
	fluentClient *fluent.Fluent
}

// NewLogger builds the console logger and, when enabled, the Fluent Bit sink
func NewLogger(cfg *config.Config) (*slog.Logger, *fluent.Fluent, error) {
	logCfg := logging.Config{
		Writer: os.Stderr,
		Level:  logging.ParseLevel(cfg.Log.Level),
		JSON:   cfg.Log.Format == "json",
	}

	var client *fluent.Fluent
	if cfg.FluentBit.Enabled {
		var err error
		client, err = logging.NewFluentClient(cfg.FluentBit.Host, cfg.FluentBit.Port, cfg.AppName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create fluentbit client: %w", err)
		}
		logCfg.Fluent = client
		logCfg.FluentLevel = logging.ParseLevel(cfg.FluentBit.Level)
	}

	logger := logging.New(logCfg).With("service_name", cfg.AppName)
	logger.Debug("Logger system initialized", "component", "app", "fluent_enabled", cfg.FluentBit.Enabled)
	return logger, client, nil
}

// New creates every component described by cfg
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, fluentClient, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, fluentClient: fluentClient}

	store, closeStore, err := cache.Open(ctx, cfg.CacheStore(logger.With("component", "cache")))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}
	a.Store = store
	a.closeStore = closeStore
	logger.Info("Cache opened", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL)

	a.Sources = scraper.NewDefaultRegistry(cfg.Sources, logger)
	logger.Info("Sources registered", "enabled", a.Sources.Enabled())

	enricher, err := newEnricher(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Coordinator = hub.NewCoordinator(a.Store, a.Sources, hub.Config{
		RequiredFields: cfg.Lookup.RequiredFields,
		Enricher:       enricher,
	}, logger)

	return a, nil
}

func newEnricher(cfg *config.Config, logger *slog.Logger) (*hub.Enricher, error) {
	var geocoder hub.Geocoder
	if cfg.GeocoderEnabled {
		geocoder = geo.NewGeocoder(cfg.NominatimURL)
	}

	var schools hub.SchoolFinder
	if cfg.SchoolsCSV != "" {
		index, err := geo.LoadSchoolsFile(cfg.SchoolsCSV)
		if err != nil {
			return nil, fmt.Errorf("failed to load schools: %w", err)
		}
		logger.Info("Schools loaded", "path", cfg.SchoolsCSV, "count", len(index.Schools))
		schools = index
	}

	return hub.NewEnricher(geocoder, schools, logger), nil
}

// LookupOptions returns the configured per-lookup defaults
func (a *App) LookupOptions() hub.Options {
	return hub.Options{
		EnableFallbacks: a.Config.Lookup.EnableFallbacks,
		MaxFallbacks:    a.Config.Lookup.MaxFallbacks,
	}
}

// Close releases the browser, the cache connection and the Fluent Bit client
func (a *App) Close() {
	if a.Sources != nil {
		a.Sources.Close()
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			a.Logger.Error("Failed to close cache", "error", err)
		}
	}
	if a.fluentClient != nil {
		if err := a.fluentClient.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Error closing fluent client: %v\n", err)
		}
	}
}
