package credential

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// entry is one pool credential with its private counters and breaker.
// Reservation and report paths lock the entry, never the whole pool, so
// two workers reporting on different credentials do not contend.
type entry struct {
	id string

	mu          sync.Mutex
	key         string
	disabled    bool
	minuteLimit int64
	dayLimit    int64
	lastSuccess time.Time
	lastFailure time.Time

	minute  *UsageWindow
	day     *UsageWindow
	circuit *CircuitBreaker
}

// Pool owns the upstream credentials: rotation, usage windows, circuit
// breakers, and the alert history. Credentials are created from
// configuration at startup and never destroyed at runtime; hot reload may
// disable them or adjust limits.
type Pool struct {
	cfg     config.PoolConfig
	logger  *slog.Logger
	metrics *metrics.Registry
	alerts  *alertLog

	// mu guards the entries slice and the rotation cursor, the only
	// shared mutable state outside the per-entry locks.
	mu      sync.RWMutex
	entries []*entry
	cursor  int
}

// NewPool builds the pool from validated configuration. A credential whose
// key material cannot be resolved is a fatal configuration error: the pool
// must never start with a credential it cannot use.
func NewPool(creds []config.CredentialConfig, cfg config.PoolConfig, reg *metrics.Registry, logger *slog.Logger) (*Pool, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("credential pool: no credentials configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry(config.MetricsConfig{})
	}

	p := &Pool{
		cfg:     cfg,
		logger:  logger.With("component", "credential_pool"),
		metrics: reg,
		alerts:  newAlertLog(cfg.AlertHistory),
	}

	for _, c := range creds {
		e, err := newEntry(c, cfg)
		if err != nil {
			return nil, err
		}
		p.entries = append(p.entries, e)
	}

	return p, nil
}

func newEntry(c config.CredentialConfig, cfg config.PoolConfig) (*entry, error) {
	key := c.ResolveKey()
	if key == "" {
		if c.KeyEnv != "" {
			return nil, fmt.Errorf("credential %q: environment variable %s is not set", c.ID, c.KeyEnv)
		}
		return nil, fmt.Errorf("credential %q: key is empty", c.ID)
	}

	return &entry{
		id:          c.ID,
		key:         key,
		disabled:    c.Disabled,
		minuteLimit: int64(c.RPMLimit),
		dayLimit:    int64(c.DailyLimit),
		minute:      NewMinuteWindow(),
		day:         NewDayWindow(),
		circuit:     NewCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown, cfg.CooldownMax),
	}, nil
}

// Select returns a lease on the next eligible credential, round-robin from
// the last selected index, reserving one slot in each usage window.
// ErrNoCredential means every credential is open, exhausted, or disabled;
// the caller queues the request instead of failing it.
func (p *Pool) Select() (Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	for i := 0; i < n; i++ {
		e := p.entries[(p.cursor+i)%n]
		lease, ok := e.tryReserve()
		if !ok {
			continue
		}
		p.cursor = (p.cursor + i + 1) % n

		p.observeUsage(e)
		p.metrics.Increment("credential_requests_total", metrics.Labels{"credential": e.id})
		return lease, nil
	}

	return Lease{}, ErrNoCredential
}

// tryReserve checks eligibility and reserves a window slot atomically for
// this entry. Window headroom is checked before the circuit so a skipped
// candidate never consumes the half-open probe.
func (e *entry) tryReserve() (Lease, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disabled {
		return Lease{}, false
	}
	if e.minute.Sum() >= e.minuteLimit || e.day.Sum() >= e.dayLimit {
		return Lease{}, false
	}
	if !e.circuit.Allow() {
		return Lease{}, false
	}

	e.minute.Add(1)
	e.day.Add(1)
	return Lease{CredentialID: e.id, Key: e.key}, true
}

// observeUsage checks both windows against the alert thresholds after a
// reservation.
func (p *Pool) observeUsage(e *entry) {
	e.mu.Lock()
	minuteUsed, minuteLimit := e.minute.Sum(), e.minuteLimit
	dayUsed, dayLimit := e.day.Sum(), e.dayLimit
	e.mu.Unlock()

	if alert, ok := p.alerts.observeUsage(e.id, "minute", minuteUsed, minuteLimit, p.cfg.WarningThreshold, p.cfg.CriticalThreshold); ok {
		p.logger.Warn("usage alert", "credential", e.id, "level", string(alert.Level), "detail", alert.Message)
	}
	if alert, ok := p.alerts.observeUsage(e.id, "day", dayUsed, dayLimit, p.cfg.WarningThreshold, p.cfg.CriticalThreshold); ok {
		p.logger.Warn("usage alert", "credential", e.id, "level", string(alert.Level), "detail", alert.Message)
	}
}

// ReportSuccess records a successful upstream call against the credential.
// A half-open circuit closes.
func (p *Pool) ReportSuccess(id string) {
	e := p.find(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.lastSuccess = time.Now()
	e.mu.Unlock()

	if _, closed := e.circuit.RecordSuccess(); closed {
		p.metrics.Increment("circuit_transitions_total", metrics.Labels{"credential": id, "state": "closed"})
		p.logger.Info("circuit closed", "credential", id)
	}
}

// ReportFailure records a failed upstream call against the credential.
// Reaching the failure threshold (or failing the half-open probe) opens
// the circuit, which emits a critical alert.
func (p *Pool) ReportFailure(id string, reason error) {
	e := p.find(id)
	if e == nil {
		return
	}

	e.mu.Lock()
	e.lastFailure = time.Now()
	e.mu.Unlock()

	state, opened := e.circuit.RecordFailure()
	p.metrics.Increment("credential_failures_total", metrics.Labels{"credential": id})

	if opened {
		p.metrics.Increment("circuit_transitions_total", metrics.Labels{"credential": id, "state": "open"})
		p.alerts.record(id, AlertCritical, fmt.Sprintf("credential %s circuit opened after %d consecutive failures", id, e.circuit.Failures()))
		p.logger.Error("circuit opened",
			"credential", id,
			"failures", e.circuit.Failures(),
			"cooldown", e.circuit.RemainingCooldown().String(),
			"error", reason)
		return
	}

	p.logger.Warn("upstream failure reported",
		"credential", id,
		"circuit", state.String(),
		"failures", e.circuit.Failures(),
		"error", reason)
}

// HealthStatus classifies each credential: circuit-open, degraded
// (half-open, or usage at or past the warning threshold), else healthy.
// Disabled credentials count toward the total only.
func (p *Pool) HealthStatus() HealthStatus {
	status := HealthStatus{}
	for _, e := range p.snapshotEntries() {
		status.Total++

		e.mu.Lock()
		disabled := e.disabled
		minuteUsed, minuteLimit := e.minute.Sum(), e.minuteLimit
		dayUsed, dayLimit := e.day.Sum(), e.dayLimit
		e.mu.Unlock()

		if disabled {
			continue
		}

		switch e.circuit.State() {
		case CircuitOpen:
			status.CircuitOpen++
		case CircuitHalfOpen:
			status.Degraded++
		default:
			if nearLimit(minuteUsed, minuteLimit, p.cfg.WarningThreshold) ||
				nearLimit(dayUsed, dayLimit, p.cfg.WarningThreshold) {
				status.Degraded++
			} else {
				status.Healthy++
			}
		}
	}
	return status
}

// Capacity sums current usage and limits across enabled credentials.
func (p *Pool) Capacity() Capacity {
	total := Capacity{}
	for _, e := range p.snapshotEntries() {
		e.mu.Lock()
		if !e.disabled {
			total.CurrentRPM += e.minute.Sum()
			total.MaxRPM += e.minuteLimit
			total.CurrentDaily += e.day.Sum()
			total.MaxDaily += e.dayLimit
		}
		e.mu.Unlock()
	}
	return total
}

// UsageAlerts returns the retained alert history, newest first.
func (p *Pool) UsageAlerts() []Alert {
	return p.alerts.list()
}

// Snapshot returns per-credential views for the admin surface.
func (p *Pool) Snapshot() []View {
	entries := p.snapshotEntries()
	views := make([]View, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		v := View{
			ID:          e.id,
			Disabled:    e.disabled,
			MinuteUsed:  e.minute.Sum(),
			MinuteLimit: e.minuteLimit,
			DayUsed:     e.day.Sum(),
			DayLimit:    e.dayLimit,
		}
		if !e.lastSuccess.IsZero() {
			t := e.lastSuccess
			v.LastSuccess = &t
		}
		if !e.lastFailure.IsZero() {
			t := e.lastFailure
			v.LastFailure = &t
		}
		e.mu.Unlock()

		v.Circuit = e.circuit.State().String()
		v.ConsecutiveFailures = e.circuit.Failures()
		if cd := e.circuit.RemainingCooldown(); cd > 0 {
			v.CooldownSeconds = cd.Seconds()
		}
		views = append(views, v)
	}
	return views
}

// Size returns the number of configured credentials.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// UpdateCredentials applies a reloaded credential set: limits, keys, and
// disabled flags change in place (usage windows and breakers survive),
// new credentials join the rotation, removed ones leave it. The whole
// update is rejected if any key fails to resolve, so a bad reload changes
// nothing.
func (p *Pool) UpdateCredentials(creds []config.CredentialConfig) error {
	if len(creds) == 0 {
		return fmt.Errorf("credential pool: refusing update to empty credential set")
	}
	resolved := make(map[string]string, len(creds))
	for _, c := range creds {
		key := c.ResolveKey()
		if key == "" {
			if c.KeyEnv != "" {
				return fmt.Errorf("credential %q: environment variable %s is not set", c.ID, c.KeyEnv)
			}
			return fmt.Errorf("credential %q: key is empty", c.ID)
		}
		resolved[c.ID] = key
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing := make(map[string]*entry, len(p.entries))
	for _, e := range p.entries {
		existing[e.id] = e
	}

	next := make([]*entry, 0, len(creds))
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		seen[c.ID] = true
		if e, ok := existing[c.ID]; ok {
			e.mu.Lock()
			e.key = resolved[c.ID]
			e.disabled = c.Disabled
			e.minuteLimit = int64(c.RPMLimit)
			e.dayLimit = int64(c.DailyLimit)
			e.mu.Unlock()
			next = append(next, e)
			continue
		}

		e, err := newEntry(c, p.cfg)
		if err != nil {
			return err
		}
		next = append(next, e)
		p.logger.Info("credential added", "credential", c.ID)
	}

	for id := range existing {
		if !seen[id] {
			p.logger.Info("credential removed", "credential", id)
		}
	}

	p.entries = next
	if p.cursor >= len(next) {
		p.cursor = 0
	}
	return nil
}

func (p *Pool) find(id string) *entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		if e.id == id {
			return e
		}
	}
	return nil
}

func (p *Pool) snapshotEntries() []*entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := make([]*entry, len(p.entries))
	copy(entries, p.entries)
	return entries
}

func nearLimit(used, limit int64, warning float64) bool {
	if limit <= 0 {
		return false
	}
	return float64(used)/float64(limit) >= warning
}
