// Package middleware provides the HTTP middleware chain: request IDs,
// request logging, panic recovery, CORS, per-request deadlines, and admin
// authentication.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware attaches a request ID to the context and the
// response headers. A client-provided X-Request-ID is kept so callers can
// correlate across systems; otherwise a fresh one is generated.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(r.Context(), requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
