package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Poster sends one record to a collector. *fluent.Fluent satisfies it.
type Poster interface {
	Post(tag string, message interface{}) error
}

// FluentHandler is a slog.Handler that posts flattened records to Fluent Bit,
// tagged by level
type FluentHandler struct {
	client   Poster
	minLevel slog.Leveler
	attrs    []slog.Attr
	group    string
}

// NewFluentHandler creates a handler posting to client. minLevel defaults to info.
func NewFluentHandler(client Poster, minLevel slog.Leveler) *FluentHandler {
	if minLevel == nil {
		minLevel = slog.LevelInfo
	}
	return &FluentHandler{client: client, minLevel: minLevel}
}

func (h *FluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel.Level()
}

func (h *FluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+3)
	for _, a := range h.attrs {
		addAttr(data, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, h.group, a)
		return true
	})

	level := strings.ToLower(r.Level.String())
	data["level"] = level
	data["message"] = r.Message
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	data["timestamp"] = ts.UTC().Format(time.RFC3339Nano)

	return h.client.Post(level, data)
}

func (h *FluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *FluentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

// addAttr flattens groups into dotted keys
func addAttr(data map[string]interface{}, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			addAttr(data, key, ga)
		}
	case slog.KindTime:
		data[key] = a.Value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindDuration:
		data[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			data[key] = err.Error()
		} else {
			data[key] = a.Value.Any()
		}
	default:
		data[key] = a.Value.Any()
	}
}
