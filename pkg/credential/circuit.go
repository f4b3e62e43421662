package credential

import (
	"sync"
	"time"
)

// CircuitState is the failure-isolation state of one credential.
type CircuitState int

const (
	// CircuitClosed admits requests normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen admits a single probe request.
	CircuitHalfOpen
)

// String returns the wire name of the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker isolates a credential from a failing upstream.
//
// Closed counts consecutive failures; reaching the threshold opens the
// circuit. An open circuit rejects requests until its cool-down elapses,
// then admits one probe in half-open: a success closes the circuit, a
// failure reopens it. Successive openings without an intervening close
// double the cool-down up to the configured cap.
type CircuitBreaker struct {
	threshold   int
	cooldown    time.Duration
	cooldownMax time.Duration

	mu       sync.Mutex
	state    CircuitState
	failures int
	openings int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, cooldown, cooldownMax time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:   threshold,
		cooldown:    cooldown,
		cooldownMax: cooldownMax,
		state:       CircuitClosed,
		now:         time.Now,
	}
}

// Allow reports whether a request may go through. An open circuit past its
// cool-down transitions to half-open and admits exactly one probe; further
// calls are rejected until the probe reports back.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldownLocked() {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
// The second return is true when this call closed the circuit.
func (cb *CircuitBreaker) RecordSuccess() (CircuitState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probing = false
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.openings = 0
		return cb.state, true
	}
	return cb.state, false
}

// RecordFailure counts a failure, opening the circuit at the threshold or
// immediately when the half-open probe fails. The second return is true
// when this call opened the circuit. Failures reported while the circuit
// is already open (late reports from in-flight calls) keep counting but
// cause no transition.
func (cb *CircuitBreaker) RecordFailure() (CircuitState, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	cb.failures++
	switch cb.state {
	case CircuitHalfOpen:
		cb.openLocked()
		return cb.state, true
	case CircuitClosed:
		if cb.failures >= cb.threshold {
			cb.openLocked()
			return cb.state, true
		}
	}
	return cb.state, false
}

// State returns the stored state without triggering transitions.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// RemainingCooldown returns how long until an open circuit will probe.
// Zero for closed or half-open circuits.
func (cb *CircuitBreaker) RemainingCooldown() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return 0
	}
	remaining := cb.cooldownLocked() - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (cb *CircuitBreaker) openLocked() {
	cb.state = CircuitOpen
	cb.openedAt = cb.now()
	cb.openings++
	cb.probing = false
}

// cooldownLocked returns the cool-down for the current opening streak:
// cooldown doubled per successive opening, capped at cooldownMax.
func (cb *CircuitBreaker) cooldownLocked() time.Duration {
	d := cb.cooldown
	for i := 1; i < cb.openings; i++ {
		d *= 2
		if d >= cb.cooldownMax {
			return cb.cooldownMax
		}
	}
	if d > cb.cooldownMax {
		return cb.cooldownMax
	}
	return d
}
