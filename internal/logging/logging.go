// Package logging builds the application's slog.Logger: a console handler
// (tint or JSON) optionally fanned out to Fluent Bit.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
)

// Config for New
type Config struct {
	// Writer defaults to os.Stderr
	Writer io.Writer
	Level  slog.Leveler
	JSON   bool
	// NoColor disables tint's ANSI colours for text output
	NoColor bool

	// Fluent, when set, receives a copy of every record at FluentLevel or above
	Fluent      Poster
	FluentLevel slog.Leveler
}

// New creates a logger from cfg
func New(cfg Config) *slog.Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.Level == nil {
		cfg.Level = slog.LevelInfo
	}

	var console slog.Handler
	if cfg.JSON {
		console = slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		console = tint.NewHandler(cfg.Writer, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    cfg.NoColor,
		})
	}

	if cfg.Fluent == nil {
		return slog.New(console)
	}
	return slog.New(Fanout(console, NewFluentHandler(cfg.Fluent, cfg.FluentLevel)))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewFluentClient connects to Fluent Bit. Records are sent asynchronously, so
// an unreachable collector never blocks a lookup.
func NewFluentClient(host string, port int, tagPrefix string) (*fluent.Fluent, error) {
	if tagPrefix == "" {
		return nil, errors.New("fluentd tag prefix is required")
	}
	client, err := fluent.New(fluent.Config{
		FluentHost: host,
		FluentPort: port,
		TagPrefix:  tagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fluentd logger: %w", err)
	}
	return client, nil
}

type fanout []slog.Handler

// Fanout returns a handler that passes every record to each of handlers
func Fanout(handlers ...slog.Handler) slog.Handler {
	return fanout(handlers)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
