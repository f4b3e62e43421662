package upstream

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the upstream rejected the credential (HTTP 401 or 403).
type AuthError struct {
	// Message is the error detail from the upstream.
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream authentication failed: %s", e.Message)
}

// RateLimitError means the upstream throttled the request (HTTP 429).
type RateLimitError struct {
	// RetryAfter is the upstream's requested back-off, zero when the
	// response carried none.
	RetryAfter time.Duration

	// Message is the error detail from the upstream.
	Message string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream rate limit exceeded (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("upstream rate limit exceeded: %s", e.Message)
}

// RequestError means the request itself is bad and retrying the same
// payload cannot succeed: either the upstream rejected it (HTTP 400) or
// local validation did. StatusCode is zero for local rejections.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("invalid request: %s", e.Message)
	}
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, e.Message)
}

// ServerError means the upstream failed (HTTP 5xx) or was unreachable.
// StatusCode is zero for transport-level failures.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream unreachable: %s", e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// TimeoutError means the call exceeded its deadline.
type TimeoutError struct {
	// Timeout is the deadline that was exceeded.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream request timed out after %s", e.Timeout)
}

// ParseError means the upstream returned a success status with a body this
// client could not interpret.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream response parse error: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ErrorClass names the fault class of a Generate error for usage records,
// log fields, and metric labels. nil classifies as "success".
func ErrorClass(err error) string {
	if err == nil {
		return "success"
	}
	var (
		authErr    *AuthError
		rateErr    *RateLimitError
		reqErr     *RequestError
		srvErr     *ServerError
		timeoutErr *TimeoutError
		parseErr   *ParseError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &reqErr):
		return "request"
	case errors.As(err, &srvErr):
		return "server"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "other"
	}
}
