// Package usage records per-call token accounting for the upstream: which
// credential spent how many tokens on which model, how long the call took,
// and how it ended. Records are written asynchronously so the request path
// never waits on storage.
package usage

import (
	"context"
	"time"
)

// Sources distinguish how a call reached the upstream.
const (
	SourceDirect = "direct" // synchronous gateway call
	SourceWorker = "worker" // deferred job drained by the worker pool
)

// Outcomes for admissions that never reached the upstream. Records for
// completed calls carry "success" or the upstream error class instead.
const (
	OutcomeSuccess     = "success"
	OutcomeQueued      = "queued"      // deferred to the job queue
	OutcomeUnavailable = "unavailable" // no credential and the queue was full
)

// Record is one admission's accounting row. Rows for upstream calls carry
// token counts and latency; queued and unavailable admissions and cache
// hits carry the outcome alone.
type Record struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	RequestID    string    `json:"request_id,omitempty"`
	CredentialID string    `json:"credential_id"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	LatencyMS    int64     `json:"latency_ms"`
	Source       string    `json:"source"`
	Outcome      string    `json:"outcome"`
	CacheHit     bool      `json:"cache_hit,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Query selects usage records. Zero values mean no filter on that field.
type Query struct {
	Since        time.Time
	Until        time.Time
	CredentialID string
	Model        string
	Limit        int
}

// Totals aggregates a set of records.
type Totals struct {
	Calls        int64 `json:"calls"`
	Successes    int64 `json:"successes"`
	CacheHits    int64 `json:"cache_hits"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Summary is the aggregated usage view served to administrators.
// AvgLatencyMS averages only records that reached the upstream.
type Summary struct {
	Totals
	AvgLatencyMS float64           `json:"avg_latency_ms"`
	ByModel      map[string]Totals `json:"by_model"`
	ByCredential map[string]Totals `json:"by_credential"`

	latencyN int64
}

// Storage persists usage records. Implementations must be safe for
// concurrent use; the recorder writes from a background goroutine while
// admin queries read.
type Storage interface {
	// Store persists one record.
	Store(ctx context.Context, rec Record) error

	// Query returns records matching q, newest first.
	Query(ctx context.Context, q Query) ([]Record, error)

	// Summarize aggregates records at or after since.
	Summarize(ctx context.Context, since time.Time) (Summary, error)

	// DeleteBefore removes records older than cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the backend.
	Close() error
}

func (t *Totals) add(rec Record) {
	t.Calls++
	if rec.Outcome == OutcomeSuccess {
		t.Successes++
	}
	if rec.CacheHit {
		t.CacheHits++
	}
	t.InputTokens += rec.InputTokens
	t.OutputTokens += rec.OutputTokens
}

// Accumulate folds one record into the summary. Shared by the in-memory
// backend and tests that build expected summaries.
func (s *Summary) Accumulate(rec Record) {
	if s.ByModel == nil {
		s.ByModel = make(map[string]Totals)
	}
	if s.ByCredential == nil {
		s.ByCredential = make(map[string]Totals)
	}
	s.Totals.add(rec)
	if rec.LatencyMS > 0 {
		s.latencyN++
		s.AvgLatencyMS += (float64(rec.LatencyMS) - s.AvgLatencyMS) / float64(s.latencyN)
	}

	if rec.Model != "" {
		m := s.ByModel[rec.Model]
		m.add(rec)
		s.ByModel[rec.Model] = m
	}
	if rec.CredentialID != "" {
		c := s.ByCredential[rec.CredentialID]
		c.add(rec)
		s.ByCredential[rec.CredentialID] = c
	}
}
