package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Tee sends each record to every handler that accepts its level.
// Nil handlers are skipped.
func Tee(handlers ...slog.Handler) slog.Handler {
	var tee teeHandler
	for _, handler := range handlers {
		if handler != nil {
			tee = append(tee, handler)
		}
	}
	if len(tee) == 0 {
		return Discard().Handler()
	}
	if len(tee) == 1 {
		return tee[0]
	}
	return tee
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range t {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range t {
		if handler.Enabled(ctx, record.Level) {
			// Each handler gets its own copy; handlers may retain attrs.
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, handler := range t {
		next[i] = fn(handler)
	}
	return next
}
