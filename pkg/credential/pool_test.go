package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

func testPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		FailureThreshold:  3,
		Cooldown:          30 * time.Second,
		CooldownMax:       10 * time.Minute,
		WarningThreshold:  0.8,
		CriticalThreshold: 0.95,
		AlertHistory:      20,
	}
}

func testCredentials(ids []string, rpm, daily int) []config.CredentialConfig {
	creds := make([]config.CredentialConfig, 0, len(ids))
	for _, id := range ids {
		creds = append(creds, config.CredentialConfig{
			ID:         id,
			Key:        "sk-test-" + id,
			RPMLimit:   rpm,
			DailyLimit: daily,
		})
	}
	return creds
}

func newTestPool(t *testing.T, creds []config.CredentialConfig, cfg config.PoolConfig) *Pool {
	t.Helper()
	p, err := NewPool(creds, cfg, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}

// setClock points every breaker in the pool at the given clock.
func setClock(p *Pool, clock *fakeClock) {
	for _, e := range p.entries {
		e.circuit.now = clock.Now
	}
}

func TestNewPoolNoCredentials(t *testing.T) {
	if _, err := NewPool(nil, testPoolConfig(), nil, nil); err == nil {
		t.Fatal("NewPool with no credentials must fail")
	}
}

func TestNewPoolUnresolvedKeyEnv(t *testing.T) {
	creds := []config.CredentialConfig{
		{ID: "env-cred", KeyEnv: "GANYMEDE_TEST_KEY_THAT_IS_NOT_SET", RPMLimit: 10, DailyLimit: 100},
	}
	_, err := NewPool(creds, testPoolConfig(), nil, nil)
	if err == nil {
		t.Fatal("NewPool with an unresolved key env must fail")
	}
}

func TestNewPoolResolvesKeyEnv(t *testing.T) {
	t.Setenv("GANYMEDE_TEST_POOL_KEY", "sk-from-env")
	creds := []config.CredentialConfig{
		{ID: "env-cred", KeyEnv: "GANYMEDE_TEST_POOL_KEY", RPMLimit: 10, DailyLimit: 100},
	}
	p := newTestPool(t, creds, testPoolConfig())

	lease, err := p.Select()
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if lease.Key != "sk-from-env" {
		t.Errorf("lease.Key = %q, want the env-resolved key", lease.Key)
	}
}

func TestPoolSelectRoundRobin(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b", "c"}, 100, 1000), testPoolConfig())

	want := []string{"a", "b", "c", "a", "b", "c"}
	for i, wantID := range want {
		lease, err := p.Select()
		if err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
		if lease.CredentialID != wantID {
			t.Errorf("Select %d = %q, want %q", i, lease.CredentialID, wantID)
		}
	}
}

func TestPoolSelectExhaustionIsBackpressure(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 1, 1000), testPoolConfig())

	first, err := p.Select()
	if err != nil {
		t.Fatalf("first Select failed: %v", err)
	}
	second, err := p.Select()
	if err != nil {
		t.Fatalf("second Select failed: %v", err)
	}
	if first.CredentialID == second.CredentialID {
		t.Errorf("both selects landed on %q, want rotation", first.CredentialID)
	}

	if _, err := p.Select(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("exhausted pool returned %v, want ErrNoCredential", err)
	}
}

func TestPoolSelectSkipsDisabled(t *testing.T) {
	creds := testCredentials([]string{"a", "b"}, 100, 1000)
	creds[0].Disabled = true
	p := newTestPool(t, creds, testPoolConfig())

	for i := 0; i < 3; i++ {
		lease, err := p.Select()
		if err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
		if lease.CredentialID != "b" {
			t.Errorf("Select %d = %q, want only enabled credential b", i, lease.CredentialID)
		}
	}
}

func TestPoolSelectSkipsOpenCircuit(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 100, 1000), testPoolConfig())

	for i := 0; i < 3; i++ {
		p.ReportFailure("a", errors.New("upstream 500"))
	}

	for i := 0; i < 4; i++ {
		lease, err := p.Select()
		if err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
		if lease.CredentialID != "b" {
			t.Errorf("Select %d = %q, want b while a's circuit is open", i, lease.CredentialID)
		}
	}
}

func TestPoolSelectDailyLimit(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a"}, 100, 2), testPoolConfig())

	for i := 0; i < 2; i++ {
		if _, err := p.Select(); err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
	}
	if _, err := p.Select(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("daily-exhausted pool returned %v, want ErrNoCredential", err)
	}
}

func TestPoolCircuitLifecycle(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, testCredentials([]string{"a"}, 100, 1000), testPoolConfig())
	setClock(p, clock)

	// Failures below the threshold leave the credential selectable.
	p.ReportFailure("a", errors.New("timeout"))
	p.ReportFailure("a", errors.New("timeout"))
	if _, err := p.Select(); err != nil {
		t.Fatalf("Select below threshold failed: %v", err)
	}

	p.ReportFailure("a", errors.New("timeout"))
	if got := p.Snapshot()[0].Circuit; got != "open" {
		t.Fatalf("circuit = %q after threshold failures, want open", got)
	}
	if _, err := p.Select(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("Select with open circuit returned %v, want ErrNoCredential", err)
	}

	// Past the cool-down the next select carries the half-open probe.
	clock.Advance(31 * time.Second)
	lease, err := p.Select()
	if err != nil {
		t.Fatalf("Select after cool-down failed: %v", err)
	}
	if got := p.Snapshot()[0].Circuit; got != "half-open" {
		t.Fatalf("circuit = %q during probe, want half-open", got)
	}
	if _, err := p.Select(); !errors.Is(err, ErrNoCredential) {
		t.Fatal("second select during probe must be rejected")
	}

	p.ReportSuccess(lease.CredentialID)
	if got := p.Snapshot()[0].Circuit; got != "closed" {
		t.Fatalf("circuit = %q after probe success, want closed", got)
	}
	if got := p.Snapshot()[0].ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d after success, want 0", got)
	}
	if _, err := p.Select(); err != nil {
		t.Errorf("Select after recovery failed: %v", err)
	}
}

func TestPoolProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, testCredentials([]string{"a"}, 100, 1000), testPoolConfig())
	setClock(p, clock)

	for i := 0; i < 3; i++ {
		p.ReportFailure("a", errors.New("upstream 500"))
	}
	clock.Advance(31 * time.Second)

	lease, err := p.Select()
	if err != nil {
		t.Fatalf("probe Select failed: %v", err)
	}
	p.ReportFailure(lease.CredentialID, errors.New("still failing"))

	view := p.Snapshot()[0]
	if view.Circuit != "open" {
		t.Fatalf("circuit = %q after probe failure, want open", view.Circuit)
	}
	// The reopened cool-down is doubled, so the original interval is not
	// enough anymore.
	clock.Advance(31 * time.Second)
	if _, err := p.Select(); !errors.Is(err, ErrNoCredential) {
		t.Error("circuit admitted a probe before the doubled cool-down")
	}
	clock.Advance(30 * time.Second)
	if _, err := p.Select(); err != nil {
		t.Errorf("circuit did not admit a probe after the doubled cool-down: %v", err)
	}
}

func TestPoolHealthStatus(t *testing.T) {
	cfg := testPoolConfig()
	creds := testCredentials([]string{"a", "b", "c"}, 100, 1000)
	creds[2].Disabled = true
	p := newTestPool(t, creds, cfg)

	for i := 0; i < 3; i++ {
		p.ReportFailure("b", errors.New("upstream 500"))
	}

	got := p.HealthStatus()
	want := HealthStatus{Total: 3, Healthy: 1, Degraded: 0, CircuitOpen: 1}
	if got != want {
		t.Errorf("HealthStatus() = %+v, want %+v", got, want)
	}
}

func TestPoolHealthStatusDegradedNearLimit(t *testing.T) {
	cfg := testPoolConfig()
	cfg.WarningThreshold = 0.5
	p := newTestPool(t, testCredentials([]string{"a"}, 2, 1000), cfg)

	if _, err := p.Select(); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	got := p.HealthStatus()
	if got.Degraded != 1 || got.Healthy != 0 {
		t.Errorf("HealthStatus() = %+v, want one degraded credential at 50%% usage", got)
	}
}

func TestPoolCapacity(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 5, 100), testPoolConfig())

	for i := 0; i < 3; i++ {
		if _, err := p.Select(); err != nil {
			t.Fatalf("Select %d failed: %v", i, err)
		}
	}

	got := p.Capacity()
	want := Capacity{CurrentRPM: 3, MaxRPM: 10, CurrentDaily: 3, MaxDaily: 200}
	if got != want {
		t.Errorf("Capacity() = %+v, want %+v", got, want)
	}
}

func TestPoolCapacityExcludesDisabled(t *testing.T) {
	creds := testCredentials([]string{"a", "b"}, 5, 100)
	creds[1].Disabled = true
	p := newTestPool(t, creds, testPoolConfig())

	got := p.Capacity()
	want := Capacity{MaxRPM: 5, MaxDaily: 100}
	if got != want {
		t.Errorf("Capacity() = %+v, want %+v", got, want)
	}
}

func TestPoolUsageAlerts(t *testing.T) {
	cfg := testPoolConfig()
	cfg.WarningThreshold = 0.5
	cfg.CriticalThreshold = 0.9
	p := newTestPool(t, testCredentials([]string{"a"}, 2, 1000), cfg)

	if _, err := p.Select(); err != nil { // 1/2 = warning
		t.Fatalf("Select failed: %v", err)
	}
	if _, err := p.Select(); err != nil { // 2/2 = critical
		t.Fatalf("Select failed: %v", err)
	}

	alerts := p.UsageAlerts()
	if len(alerts) != 2 {
		t.Fatalf("UsageAlerts() returned %d alerts, want 2", len(alerts))
	}
	if alerts[0].Level != AlertCritical || alerts[1].Level != AlertWarning {
		t.Errorf("alert levels = [%s, %s], want [critical, warning] newest first",
			alerts[0].Level, alerts[1].Level)
	}
	for _, a := range alerts {
		if a.CredentialID != "a" {
			t.Errorf("alert credential = %q, want a", a.CredentialID)
		}
	}
}

func TestPoolAlertOnCircuitOpen(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a"}, 100, 1000), testPoolConfig())

	for i := 0; i < 3; i++ {
		p.ReportFailure("a", errors.New("upstream 500"))
	}

	alerts := p.UsageAlerts()
	if len(alerts) != 1 {
		t.Fatalf("UsageAlerts() returned %d alerts, want 1", len(alerts))
	}
	if alerts[0].Level != AlertCritical {
		t.Errorf("alert level = %q, want critical", alerts[0].Level)
	}
}

func TestPoolSnapshot(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 10, 100), testPoolConfig())

	if _, err := p.Select(); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	p.ReportFailure("a", errors.New("upstream 500"))

	views := p.Snapshot()
	if len(views) != 2 {
		t.Fatalf("Snapshot() returned %d views, want 2", len(views))
	}

	a := views[0]
	if a.ID != "a" {
		t.Fatalf("views[0].ID = %q, want a", a.ID)
	}
	if a.MinuteUsed != 1 || a.MinuteLimit != 10 || a.DayUsed != 1 || a.DayLimit != 100 {
		t.Errorf("usage view = %+v, want 1/10 minute and 1/100 day", a)
	}
	if a.Circuit != "closed" || a.ConsecutiveFailures != 1 {
		t.Errorf("circuit view = %q/%d, want closed/1", a.Circuit, a.ConsecutiveFailures)
	}
	if a.LastFailure == nil {
		t.Error("LastFailure not set after a reported failure")
	}
	if a.LastSuccess != nil {
		t.Error("LastSuccess set without a reported success")
	}
}

func TestPoolReportUnknownCredential(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a"}, 10, 100), testPoolConfig())

	// Reports for removed credentials must be ignored, not panic.
	p.ReportSuccess("gone")
	p.ReportFailure("gone", errors.New("late report"))

	if got := p.Snapshot()[0].ConsecutiveFailures; got != 0 {
		t.Errorf("unknown-credential report leaked into a: failures = %d", got)
	}
}

func TestPoolUpdateCredentials(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 5, 100), testPoolConfig())

	if _, err := p.Select(); err != nil { // reserve one slot on a
		t.Fatalf("Select failed: %v", err)
	}

	next := []config.CredentialConfig{
		{ID: "a", Key: "sk-test-a", RPMLimit: 10, DailyLimit: 200},
		{ID: "c", Key: "sk-test-c", RPMLimit: 5, DailyLimit: 100},
	}
	if err := p.UpdateCredentials(next); err != nil {
		t.Fatalf("UpdateCredentials failed: %v", err)
	}

	if got := p.Size(); got != 2 {
		t.Fatalf("Size() = %d after update, want 2", got)
	}

	views := p.Snapshot()
	byID := make(map[string]View, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}
	if _, ok := byID["b"]; ok {
		t.Error("removed credential b still present")
	}
	a, ok := byID["a"]
	if !ok {
		t.Fatal("credential a missing after update")
	}
	if a.MinuteUsed != 1 {
		t.Errorf("a.MinuteUsed = %d, want 1: usage must survive reload", a.MinuteUsed)
	}
	if a.MinuteLimit != 10 || a.DayLimit != 200 {
		t.Errorf("a limits = %d/%d, want updated 10/200", a.MinuteLimit, a.DayLimit)
	}
	if _, ok := byID["c"]; !ok {
		t.Error("added credential c missing after update")
	}
}

func TestPoolUpdateCredentialsRejectsBadSet(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a"}, 5, 100), testPoolConfig())

	if err := p.UpdateCredentials(nil); err == nil {
		t.Fatal("update to an empty set must be rejected")
	}

	bad := []config.CredentialConfig{
		{ID: "a", Key: "sk-test-a", RPMLimit: 5, DailyLimit: 100},
		{ID: "broken", KeyEnv: "GANYMEDE_TEST_KEY_THAT_IS_NOT_SET", RPMLimit: 5, DailyLimit: 100},
	}
	if err := p.UpdateCredentials(bad); err == nil {
		t.Fatal("update with an unresolvable key must be rejected")
	}

	// The failed update must not have changed anything.
	if got := p.Size(); got != 1 {
		t.Errorf("Size() = %d after rejected update, want 1", got)
	}
	if got := p.Snapshot()[0].ID; got != "a" {
		t.Errorf("credential = %q after rejected update, want a", got)
	}
}

func TestPoolConcurrentSelect(t *testing.T) {
	p := newTestPool(t, testCredentials([]string{"a", "b"}, 5, 1000), testPoolConfig())

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Select(); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	// Two credentials with five slots each: exactly ten grants, never an
	// overrun.
	if got := granted.Load(); got != 10 {
		t.Errorf("granted = %d leases, want 10", got)
	}
	capacity := p.Capacity()
	if capacity.CurrentRPM != 10 {
		t.Errorf("CurrentRPM = %d, want 10", capacity.CurrentRPM)
	}
}

func TestPoolConcurrentReports(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	p := newTestPool(t, testCredentials(ids, 1000, 10000), testPoolConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := ids[(i+j)%len(ids)]
				if j%2 == 0 {
					p.ReportSuccess(id)
				} else {
					p.ReportFailure(id, fmt.Errorf("fault %d", j))
				}
				if _, err := p.Select(); err != nil && !errors.Is(err, ErrNoCredential) {
					t.Errorf("Select failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := p.HealthStatus().Total; got != len(ids) {
		t.Errorf("Total = %d, want %d", got, len(ids))
	}
}
