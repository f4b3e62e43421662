// Package upstream is the HTTP client for the messages API this gateway
// fronts. It is deliberately thin: one call per Generate, no retries, no
// credential knowledge beyond the key it is handed.
//
// Failures come back as typed errors (AuthError, RateLimitError,
// RequestError, ServerError, TimeoutError, ParseError) so callers can
// map each fault class onto credential accounting and job retry policy
// without string matching.
package upstream
