package logging

import (
	"context"
	"log/slog"
)

// Context keys for request-scoped log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// JobIDKey is the context key for queued job IDs.
	JobIDKey contextKey = "job_id"

	// CredentialIDKey is the context key for the credential serving a request.
	CredentialIDKey contextKey = "credential_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithJobID adds a job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

// GetJobID retrieves the job ID from the context.
func GetJobID(ctx context.Context) string {
	if jobID, ok := ctx.Value(JobIDKey).(string); ok {
		return jobID
	}
	return ""
}

// WithCredentialID adds a credential ID to the context.
func WithCredentialID(ctx context.Context, credentialID string) context.Context {
	return context.WithValue(ctx, CredentialIDKey, credentialID)
}

// GetCredentialID retrieves the credential ID from the context.
func GetCredentialID(ctx context.Context) string {
	if credentialID, ok := ctx.Value(CredentialIDKey).(string); ok {
		return credentialID
	}
	return ""
}

// ContextHandler attaches request-scoped identifiers from the context to
// every record logged through the slog *Context methods. Handlers below it
// see the fields as ordinary attributes.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler wraps a handler with context field extraction.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

// Enabled reports whether the wrapped handler handles records at the level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle appends context fields to the record and forwards it.
func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if requestID := GetRequestID(ctx); requestID != "" {
		rec.AddAttrs(slog.String(string(RequestIDKey), requestID))
	}
	if jobID := GetJobID(ctx); jobID != "" {
		rec.AddAttrs(slog.String(string(JobIDKey), jobID))
	}
	if credentialID := GetCredentialID(ctx); credentialID != "" {
		rec.AddAttrs(slog.String(string(CredentialIDKey), credentialID))
	}
	return h.inner.Handle(ctx, rec)
}

// WithAttrs returns a handler whose wrapped handler carries the attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler whose wrapped handler opens the group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
