// Package credential manages the pool of upstream credentials: rotation,
// per-credential usage windows, circuit breakers, and usage alerts.
//
// # Selection
//
// Select walks the credentials round-robin from the last selected index
// and returns a Lease on the first one that is enabled, has headroom in
// both its rolling-minute and rolling-day windows, and whose circuit
// admits the request. Selection reserves the window slot, so a granted
// lease never overruns a limit even under concurrent callers.
// ErrNoCredential is backpressure, not failure: the caller defers the
// request to the job queue.
//
// # Circuit breaking
//
// Each credential carries its own breaker. Consecutive failures reported
// through ReportFailure open the circuit at the configured threshold; an
// open circuit rejects selection until its cool-down elapses, then admits
// a single half-open probe. A probe success closes the circuit, a failure
// reopens it with the cool-down doubled, up to the configured cap.
//
// # Alerts
//
// Crossing the warning or critical usage threshold on either window, or a
// circuit opening, appends to a bounded alert history readable through
// UsageAlerts. Usage alerts de-duplicate per credential and window and
// re-arm once usage falls back below the warning threshold.
//
// All state is in memory and partitioned per credential; the rotation
// cursor is the only shared mutable field.
package credential
