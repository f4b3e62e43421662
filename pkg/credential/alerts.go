package credential

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertLevel grades a usage alert.
type AlertLevel string

const (
	// AlertWarning marks usage crossing the warning threshold.
	AlertWarning AlertLevel = "warning"
	// AlertCritical marks usage crossing the critical threshold or a
	// circuit opening.
	AlertCritical AlertLevel = "critical"
)

// Alert is one retained pool event: a usage threshold crossing or a
// circuit opening.
type Alert struct {
	ID           string     `json:"id"`
	CredentialID string     `json:"credential_id"`
	Level        AlertLevel `json:"level"`
	Message      string     `json:"message"`
	CreatedAt    time.Time  `json:"created_at"`
}

// alertLog is a bounded alert history, oldest dropped first. Usage alerts
// are de-duplicated per credential and window: a level is announced once
// per crossing and re-arms when usage falls back below the warning
// threshold.
type alertLog struct {
	mu        sync.Mutex
	max       int
	alerts    []Alert
	lastLevel map[string]AlertLevel
	now       func() time.Time
}

func newAlertLog(max int) *alertLog {
	if max <= 0 {
		max = 1
	}
	return &alertLog{
		max:       max,
		lastLevel: make(map[string]AlertLevel),
		now:       time.Now,
	}
}

// record appends an alert, dropping the oldest past capacity.
func (l *alertLog) record(credentialID string, level AlertLevel, message string) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(credentialID, level, message)
}

func (l *alertLog) recordLocked(credentialID string, level AlertLevel, message string) Alert {
	alert := Alert{
		ID:           uuid.New().String(),
		CredentialID: credentialID,
		Level:        level,
		Message:      message,
		CreatedAt:    l.now(),
	}
	l.alerts = append(l.alerts, alert)
	if len(l.alerts) > l.max {
		l.alerts = l.alerts[len(l.alerts)-l.max:]
	}
	return alert
}

// observeUsage evaluates one window's usage against the thresholds,
// recording an alert when the level escalates. Returns the alert and true
// when one was recorded.
func (l *alertLog) observeUsage(credentialID, window string, used, limit int64, warning, critical float64) (Alert, bool) {
	if limit <= 0 {
		return Alert{}, false
	}
	fraction := float64(used) / float64(limit)

	var level AlertLevel
	switch {
	case fraction >= critical:
		level = AlertCritical
	case fraction >= warning:
		level = AlertWarning
	}

	key := credentialID + ":" + window

	l.mu.Lock()
	defer l.mu.Unlock()

	last := l.lastLevel[key]
	if level == "" {
		delete(l.lastLevel, key)
		return Alert{}, false
	}
	if level == last || (last == AlertCritical && level == AlertWarning) {
		return Alert{}, false
	}
	l.lastLevel[key] = level

	message := fmt.Sprintf("credential %s at %.1f%% of %s limit (%d/%d)",
		credentialID, fraction*100, window, used, limit)
	return l.recordLocked(credentialID, level, message), true
}

// list returns the retained alerts, newest first.
func (l *alertLog) list() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Alert, len(l.alerts))
	for i, a := range l.alerts {
		out[len(out)-1-i] = a
	}
	return out
}

func (l *alertLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.alerts)
}
