package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// GenerateRequest is the admission request body.
type GenerateRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerateResponse is returned when admission completes synchronously,
// whether from the upstream or the cache.
type GenerateResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
	Cached       bool   `json:"cached"`
}

// QueuedResponse is returned when admission defers the request for
// background retry.
type QueuedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse is the polling view of a deferred job. Failure detail stays
// on the admin surface; this view reports only that the retry budget ran
// out.
type JobResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   time.Time       `json:"started_at,omitzero"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ErrorResponse is the error payload for every error condition.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail categorizes an error for machine handling and carries a
// human-readable message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Error type constants.
const (
	// ErrorTypeInvalidRequest indicates a client-side error (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeUnauthorized indicates a missing or wrong admin key (401).
	ErrorTypeUnauthorized = "authentication_error"

	// ErrorTypeNotFound indicates the resource does not exist (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeServerError indicates an internal error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeServiceUnavailable indicates the gateway has no capacity
	// and no queue room (503).
	ErrorTypeServiceUnavailable = "service_unavailable"

	// ErrorTypeGatewayTimeout indicates the request deadline passed (504).
	ErrorTypeGatewayTimeout = "gateway_timeout"
)

// NewErrorResponse creates an error response with the given details.
func NewErrorResponse(errType, message string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Type: errType, Message: message}}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeInvalidRequest, message)
}

// NewUnauthorizedError creates an error response for failed admin auth (401).
func NewUnauthorizedError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeUnauthorized, message)
}

// NewNotFoundError creates an error response for unknown resources (404).
func NewNotFoundError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeNotFound, message)
}

// NewServerError creates an error response for internal errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeServerError, message)
}

// NewServiceUnavailableError creates an error response for exhausted
// capacity (503).
func NewServiceUnavailableError(message string) *ErrorResponse {
	return NewErrorResponse(ErrorTypeServiceUnavailable, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, NewErrorResponse(errType, message))
}
