package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"property-hub/internal/cache"
	"property-hub/internal/hub"
	"property-hub/internal/models"
)

// Lookuper runs the fallback chain. *hub.Coordinator satisfies it.
type Lookuper interface {
	Lookup(ctx context.Context, addressText string, opts hub.Options) (*hub.Report, error)
}

// SourceLister reports the registered sources. *scraper.Registry satisfies it.
type SourceLister interface {
	Enabled() []models.SourceID
}

// Handlers contains HTTP handlers and their dependencies
type Handlers struct {
	lookup   Lookuper
	store    cache.Store
	sources  SourceLister
	defaults hub.Options
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance. defaults supplies the lookup
// options a request does not override.
func NewHandlers(lookup Lookuper, store cache.Store, sources SourceLister, defaults hub.Options, logger *slog.Logger) *Handlers {
	return &Handlers{
		lookup:   lookup,
		store:    store,
		sources:  sources,
		defaults: defaults,
		logger:   logger.With("component", "api"),
	}
}

// GetProperty handles GET /api/property
func (h *Handlers) GetProperty(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	address := strings.TrimSpace(q.Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	opts, err := h.parseOptions(q.Get)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.lookup.Lookup(r.Context(), address, opts)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.logger.Info("Lookup abandoned", "address", address, "error", err)
			writeError(w, http.StatusServiceUnavailable, "lookup cancelled")
		default:
			h.logger.Error("Lookup failed", "address", address, "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// parseOptions overlays the fallbacks, max_fallbacks, refresh and required
// query parameters on the defaults
func (h *Handlers) parseOptions(get func(string) string) (hub.Options, error) {
	opts := h.defaults
	opts.RequiredFields = append([]models.Field(nil), h.defaults.RequiredFields...)

	if v := get("fallbacks"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid fallbacks %q", v)
		}
		opts.EnableFallbacks = b
	}
	if v := get("max_fallbacks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid max_fallbacks %q", v)
		}
		opts.MaxFallbacks = n
	}
	if v := get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid refresh %q", v)
		}
		opts.ForceRefresh = b
	}
	if v := get("required"); v != "" {
		var fields []models.Field
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, ok := models.ParseField(part)
			if !ok {
				return opts, fmt.Errorf("unknown field %q", part)
			}
			fields = append(fields, f)
		}
		opts.RequiredFields = fields
	}
	return opts, nil
}

type sourceStatus struct {
	Source  models.SourceID `json:"source"`
	Rank    int             `json:"rank"`
	Primary bool            `json:"primary"`
	Enabled bool            `json:"enabled"`
}

// ListSources handles GET /api/sources
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	enabled := make(map[models.SourceID]bool)
	for _, id := range h.sources.Enabled() {
		enabled[id] = true
	}

	out := make([]sourceStatus, 0, len(models.Priority))
	for i, id := range models.Priority {
		out = append(out, sourceStatus{
			Source:  id,
			Rank:    i,
			Primary: i == 0,
			Enabled: enabled[id],
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": out,
		"count":   len(out),
	})
}

// ClearCache handles DELETE /api/cache
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error("Failed to clear cache", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	h.logger.Info("Cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// ClearExpired handles POST /api/cache/expire
func (h *Handlers) ClearExpired(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearExpired(r.Context())
	if err != nil {
		h.logger.Error("Failed to clear expired cache entries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear expired entries")
		return
	}
	h.logger.Info("Expired cache entries removed", "removed", n)
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
