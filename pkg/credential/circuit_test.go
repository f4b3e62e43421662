package credential

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, clock *fakeClock) *CircuitBreaker {
	cb := NewCircuitBreaker(threshold, 30*time.Second, 10*time.Minute)
	cb.now = clock.Now
	return cb
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(3, newFakeClock())

	for i := 0; i < 2; i++ {
		if state, opened := cb.RecordFailure(); opened || state != CircuitClosed {
			t.Fatalf("failure %d: state = %v opened = %v, want closed circuit", i+1, state, opened)
		}
	}
	if !cb.Allow() {
		t.Fatal("closed circuit below threshold must admit requests")
	}

	state, opened := cb.RecordFailure()
	if !opened || state != CircuitOpen {
		t.Fatalf("third failure: state = %v opened = %v, want open transition", state, opened)
	}
	if cb.Allow() {
		t.Error("open circuit must reject requests")
	}
	if got := cb.Failures(); got != 3 {
		t.Errorf("Failures() = %d, want 3", got)
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := newTestBreaker(3, newFakeClock())

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if got := cb.State(); got != CircuitClosed {
		t.Errorf("State() = %v, want closed: success must reset the consecutive count", got)
	}
	if got := cb.Failures(); got != 2 {
		t.Errorf("Failures() = %d, want 2", got)
	}
}

func TestCircuitBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("open circuit admitted a request before cool-down")
	}

	clock.Advance(31 * time.Second)
	if !cb.Allow() {
		t.Fatal("circuit past cool-down must admit a probe")
	}
	if got := cb.State(); got != CircuitHalfOpen {
		t.Fatalf("State() = %v, want half-open", got)
	}
	if cb.Allow() {
		t.Error("half-open circuit admitted a second request while the probe is in flight")
	}

	if state, closed := cb.RecordSuccess(); !closed || state != CircuitClosed {
		t.Fatalf("probe success: state = %v closed = %v, want closed transition", state, closed)
	}
	if !cb.Allow() {
		t.Error("closed circuit must admit requests")
	}
}

func TestCircuitBreakerProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	cb.RecordFailure()
	clock.Advance(31 * time.Second)
	cb.Allow()

	state, opened := cb.RecordFailure()
	if !opened || state != CircuitOpen {
		t.Fatalf("probe failure: state = %v opened = %v, want reopen", state, opened)
	}

	// Second opening doubles the cool-down: 30s is no longer enough.
	clock.Advance(31 * time.Second)
	if cb.Allow() {
		t.Error("reopened circuit admitted a probe before the doubled cool-down")
	}
	clock.Advance(30 * time.Second)
	if !cb.Allow() {
		t.Error("reopened circuit must probe after the doubled cool-down")
	}
}

func TestCircuitBreakerCooldownCapped(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(1, 10*time.Second, 25*time.Second)
	cb.now = clock.Now

	wantCooldowns := []time.Duration{
		10 * time.Second, // first opening
		20 * time.Second, // doubled
		25 * time.Second, // 40s capped
		25 * time.Second, // stays at the cap
	}
	for i, want := range wantCooldowns {
		cb.RecordFailure()
		if got := cb.RemainingCooldown(); got != want {
			t.Fatalf("opening %d: RemainingCooldown() = %v, want %v", i+1, got, want)
		}
		clock.Advance(want)
		if !cb.Allow() {
			t.Fatalf("opening %d: no probe admitted after %v", i+1, want)
		}
	}

	// A close resets the opening streak back to the base cool-down.
	cb.RecordSuccess()
	cb.RecordFailure()
	if got := cb.RemainingCooldown(); got != 10*time.Second {
		t.Errorf("after close: RemainingCooldown() = %v, want 10s", got)
	}
}

func TestCircuitBreakerLateFailuresCountWithoutTransition(t *testing.T) {
	cb := newTestBreaker(2, newFakeClock())

	cb.RecordFailure()
	cb.RecordFailure()

	// Reports from calls already in flight when the circuit opened.
	if state, opened := cb.RecordFailure(); opened || state != CircuitOpen {
		t.Errorf("late failure: state = %v opened = %v, want open without a new transition", state, opened)
	}
	if got := cb.Failures(); got != 3 {
		t.Errorf("Failures() = %d, want 3", got)
	}
}

func TestCircuitBreakerRemainingCooldownDecreases(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, clock)

	if got := cb.RemainingCooldown(); got != 0 {
		t.Fatalf("closed circuit RemainingCooldown() = %v, want 0", got)
	}

	cb.RecordFailure()
	clock.Advance(10 * time.Second)
	if got := cb.RemainingCooldown(); got != 20*time.Second {
		t.Errorf("RemainingCooldown() = %v, want 20s", got)
	}
	clock.Advance(time.Minute)
	if got := cb.RemainingCooldown(); got != 0 {
		t.Errorf("RemainingCooldown() past expiry = %v, want 0", got)
	}
}

func TestCircuitStateString(t *testing.T) {
	cases := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
