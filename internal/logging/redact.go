package logging

import (
	"context"
	"log/slog"
	"strings"
)

// SensitiveKeys are attribute keys whose values never reach a log sink verbatim.
var SensitiveKeys = []string{"email", "user_id", "uid", "owner_phone", "phone", "owner_name"}

// RedactingHandler masks sensitive attributes before passing records on.
type RedactingHandler struct {
	next slog.Handler
	keys map[string]struct{}
}

func NewRedactingHandler(next slog.Handler, extraKeys ...string) *RedactingHandler {
	keys := make(map[string]struct{}, len(SensitiveKeys)+len(extraKeys))
	for _, k := range SensitiveKeys {
		keys[k] = struct{}{}
	}
	for _, k := range extraKeys {
		keys[k] = struct{}{}
	}
	return &RedactingHandler{next: next, keys: keys}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redact(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redact(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), keys: h.keys}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), keys: h.keys}
}

func (h *RedactingHandler) redact(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]any, len(group))
		for i, g := range group {
			out[i] = h.redact(g)
		}
		return slog.Group(a.Key, out...)
	}
	if _, ok := h.keys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Mask(a.Value.String()))
	}
	return a
}

// Mask hides a sensitive value. E-mail addresses keep their first letter and
// domain so operators can still tell tenants apart.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	if at := strings.LastIndex(v, "@"); at > 0 {
		return v[:1] + "***" + v[at:]
	}
	return "[redacted]"
}
