package logger

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler fans a record out to several sinks (stdout and Better Stack).
// Each sink receives its own clone of the record.
type MultiHandler struct {
	sinks []slog.Handler
}

// NewMultiHandler creates a MultiHandler, skipping nil sinks.
func NewMultiHandler(sinks ...slog.Handler) *MultiHandler {
	mh := &MultiHandler{sinks: make([]slog.Handler, 0, len(sinks))}
	for _, s := range sinks {
		if s != nil {
			mh.sinks = append(mh.sinks, s)
		}
	}
	return mh
}

// Enabled reports whether any sink accepts the level.
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes the record to every sink that accepts it and joins their errors.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range h.sinks {
		if s.Enabled(ctx, r.Level) {
			errs = append(errs, s.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *MultiHandler) derive(fn func(slog.Handler) slog.Handler) *MultiHandler {
	next := &MultiHandler{sinks: make([]slog.Handler, len(h.sinks))}
	for i, s := range h.sinks {
		next.sinks[i] = fn(s)
	}
	return next
}

// WithAttrs applies attrs to every sink.
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

// WithGroup applies the group to every sink.
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}
