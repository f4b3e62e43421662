package credential

import (
	"errors"
	"time"
)

// ErrNoCredential signals that every credential is currently ineligible:
// circuit open, window exhausted, or disabled. It is a backpressure
// signal, not a failure; callers defer the request instead of surfacing
// an error.
var ErrNoCredential = errors.New("no credential available")

// Lease grants one reserved request slot on a credential. The reservation
// already counts against the credential's usage windows.
type Lease struct {
	// CredentialID identifies the credential in reports, logs, and metrics.
	CredentialID string

	// Key is the secret used for the upstream call.
	Key string
}

// HealthStatus summarizes the pool for the health aggregator.
type HealthStatus struct {
	Total       int `json:"total"`
	Healthy     int `json:"healthy"`
	Degraded    int `json:"degraded"`
	CircuitOpen int `json:"circuit_open"`
}

// Capacity sums usage and limits across enabled credentials.
type Capacity struct {
	CurrentRPM   int64 `json:"current_rpm"`
	MaxRPM       int64 `json:"max_rpm"`
	CurrentDaily int64 `json:"current_daily"`
	MaxDaily     int64 `json:"max_daily"`
}

// View is a point-in-time snapshot of one credential for the admin
// surface. Key material is never included.
type View struct {
	ID                  string     `json:"id"`
	Disabled            bool       `json:"disabled"`
	Circuit             string     `json:"circuit"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	MinuteUsed          int64      `json:"minute_used"`
	MinuteLimit         int64      `json:"minute_limit"`
	DayUsed             int64      `json:"day_used"`
	DayLimit            int64      `json:"day_limit"`
	CooldownSeconds     float64    `json:"cooldown_seconds,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}
