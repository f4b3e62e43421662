// Package server assembles the gateway's HTTP surface and owns the
// listener lifecycle.
//
// # Routes
//
// The server exposes the following endpoints:
//
//   - POST /v1/generate - admission: 200 completed, 202 queued, 503 unavailable
//   - GET /v1/jobs/{id} - deferred job status and result
//   - GET /health - aggregated health snapshot (503 when unhealthy or critical)
//   - GET /health/live - liveness probe, always 200
//   - GET /health/ready - readiness probe, 503 until the listener is bound
//   - GET /metrics - Prometheus exposition
//   - POST /admin/cache/clear - drop all cache entries
//   - POST /admin/queue/clear - drop all job records including the DLQ
//   - GET /admin/queue/dlq?limit= - dead-letter listing
//   - POST /admin/queue/dlq/{id}/retry - requeue a dead-letter job
//   - GET /admin/alerts - recent capacity and circuit alerts
//   - GET /admin/credentials - pool health, capacity, and per-credential views
//   - GET /admin/usage?since= - usage summary
//
// The /admin subtree requires the configured key in X-Admin-Key; the
// comparison is constant-time. An empty key leaves the surface open for
// development.
//
// # Middleware Chain
//
// Requests pass through, innermost to outermost:
//  1. Timeout: puts the configured deadline on the request context
//  2. CORS: Cross-Origin Resource Sharing headers and preflight
//  3. RequestID: attaches X-Request-ID to context and response
//  4. Logging: one line per completed request
//  5. Recovery: turns handler panics into a 500 error payload
//
// # Lifecycle
//
// Start binds the listener, flips the readiness gate on, and serves until
// the context is cancelled. Shutdown flips readiness off first, then
// drains in-flight connections within the configured timeout. A server
// is one-shot: once stopped it cannot be restarted.
package server
