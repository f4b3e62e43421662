// Package storage provides the usage record backends: an in-memory store
// for tests and memory-only deployments, and a SQLite store for
// persistence across restarts.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/usage"
)

// Memory keeps usage records in a slice. Intended for tests and for
// deployments that do not need accounting to survive a restart.
type Memory struct {
	mu      sync.RWMutex
	records []usage.Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Store appends a record.
func (m *Memory) Store(_ context.Context, rec usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Query returns matching records, newest first.
func (m *Memory) Query(_ context.Context, q usage.Query) ([]usage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []usage.Record
	for _, rec := range m.records {
		if matches(rec, q) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Summarize aggregates records at or after since.
func (m *Memory) Summarize(_ context.Context, since time.Time) (usage.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s usage.Summary
	for _, rec := range m.records {
		if rec.Time.Before(since) {
			continue
		}
		s.Accumulate(rec)
	}
	return s, nil
}

// DeleteBefore removes records older than cutoff.
func (m *Memory) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	var removed int64
	for _, rec := range m.records {
		if rec.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	return removed, nil
}

// Close drops all records.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

// Len reports the record count, for tests.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func matches(rec usage.Record, q usage.Query) bool {
	if !q.Since.IsZero() && rec.Time.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && rec.Time.After(q.Until) {
		return false
	}
	if q.CredentialID != "" && rec.CredentialID != q.CredentialID {
		return false
	}
	if q.Model != "" && rec.Model != q.Model {
		return false
	}
	return true
}
