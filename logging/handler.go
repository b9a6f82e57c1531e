package logging

import (
	"context"
	"log/slog"
	"strings"
)

// homeRedactor rewrites the user's home directory in string attributes.
// Dump and plugin paths otherwise leak the account name into shared logs.
type homeRedactor struct {
	handler slog.Handler
	home    string
}

func newHomeRedactor(h slog.Handler, home string) slog.Handler {
	if home == "" || home == "/" {
		return h
	}
	return &homeRedactor{handler: h, home: home}
}

func (h *homeRedactor) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *homeRedactor) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *homeRedactor) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &homeRedactor{handler: h.handler.WithAttrs(redacted), home: h.home}
}

func (h *homeRedactor) WithGroup(name string) slog.Handler {
	return &homeRedactor{handler: h.handler.WithGroup(name), home: h.home}
}

func (h *homeRedactor) redact(s string) string {
	return strings.ReplaceAll(s, h.home, "~")
}

func (h *homeRedactor) redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redact(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]any, len(attrs))
		for i, ga := range attrs {
			out[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	}
	return a
}
