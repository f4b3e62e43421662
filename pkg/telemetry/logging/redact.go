package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credential material in log output. It catches secrets two
// ways: attribute keys that name sensitive fields have their values masked
// outright, and string values are scanned for key-shaped tokens.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []redactPattern{
			// Provider API keys (sk- prefixed).
			{regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`), "sk-***"},
			// Bearer tokens.
			{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer ***"},
			// x-api-key header dumps.
			{regexp.MustCompile(`(?i)(x-api-key[:=]\s*)\S+`), "$1***"},
		},
	}
}

// RedactString masks key-shaped tokens inside a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// sensitiveKey reports whether an attribute key names a secret field.
func (r *Redactor) sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if lower == "key" {
		return true
	}
	for _, sensitive := range []string{
		"api_key", "apikey", "admin_key",
		"secret", "token", "password",
		"authorization",
	} {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// redactValue masks a sensitive value, keeping a short prefix of string
// values as a debugging hint.
func (r *Redactor) redactValue(v slog.Value) slog.Value {
	if v.Kind() == slog.KindString {
		s := v.String()
		if len(s) <= 4 {
			return slog.StringValue("***")
		}
		return slog.StringValue(s[:4] + "***")
	}
	return slog.StringValue("***")
}

// RedactHandler is a slog.Handler that masks credential material before
// records reach the output handler. Wrapping the handler rather than the
// logger means every record is covered, including ones logged through
// slog.Default by downstream packages.
type RedactHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

// NewRedactHandler wraps a handler with credential redaction.
func NewRedactHandler(inner slog.Handler) *RedactHandler {
	return &RedactHandler{inner: inner, redactor: NewRedactor()}
}

// Enabled reports whether the wrapped handler handles records at the level.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle rewrites the record with redacted message and attributes.
func (h *RedactHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactor.RedactString(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// redactAttr redacts a single attribute, recursing into groups.
func (h *RedactHandler) redactAttr(a slog.Attr) slog.Attr {
	if h.redactor.sensitiveKey(a.Key) {
		return slog.Attr{Key: a.Key, Value: h.redactor.redactValue(a.Value.Resolve())}
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactor.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]slog.Attr, 0, len(group))
		for _, ga := range group {
			attrs = append(attrs, h.redactAttr(ga))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(attrs...)}
	default:
		return a
	}
}

// WithAttrs redacts the attributes before attaching them to the wrapped
// handler.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		redacted = append(redacted, h.redactAttr(a))
	}
	return &RedactHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup returns a handler whose wrapped handler opens the group.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}
