package storage

import (
	"context"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/usage"
)

var memBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	records := []usage.Record{
		{ID: "r1", Time: memBase, CredentialID: "primary", Model: "haiku", InputTokens: 10, OutputTokens: 20, LatencyMS: 100, Source: usage.SourceDirect, Outcome: "success"},
		{ID: "r2", Time: memBase.Add(time.Minute), CredentialID: "primary", Model: "sonnet", InputTokens: 30, OutputTokens: 0, Source: usage.SourceWorker, Outcome: "server"},
		{ID: "r3", Time: memBase.Add(2 * time.Minute), CredentialID: "secondary", Model: "haiku", InputTokens: 5, OutputTokens: 7, LatencyMS: 200, Source: usage.SourceDirect, Outcome: "success"},
	}
	for _, rec := range records {
		if err := m.Store(ctx, rec); err != nil {
			t.Fatalf("Store %s failed: %v", rec.ID, err)
		}
	}
	return m
}

func TestMemoryQueryFilters(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	all, err := m.Query(ctx, usage.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Query returned %d records, want 3", len(all))
	}
	// Newest first.
	if all[0].ID != "r3" || all[2].ID != "r1" {
		t.Errorf("Query order = %s..%s, want r3..r1", all[0].ID, all[2].ID)
	}

	byCred, _ := m.Query(ctx, usage.Query{CredentialID: "primary"})
	if len(byCred) != 2 {
		t.Errorf("credential filter returned %d records, want 2", len(byCred))
	}
	byModel, _ := m.Query(ctx, usage.Query{Model: "haiku"})
	if len(byModel) != 2 {
		t.Errorf("model filter returned %d records, want 2", len(byModel))
	}
	since, _ := m.Query(ctx, usage.Query{Since: memBase.Add(time.Minute)})
	if len(since) != 2 {
		t.Errorf("since filter returned %d records, want 2", len(since))
	}
	limited, _ := m.Query(ctx, usage.Query{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "r3" {
		t.Errorf("limit 1 returned %+v, want just r3", limited)
	}
}

func TestMemorySummarize(t *testing.T) {
	m := seedMemory(t)

	s, err := m.Summarize(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.Calls != 3 || s.Successes != 2 {
		t.Errorf("totals = %d/%d, want 3 calls, 2 successes", s.Calls, s.Successes)
	}
	if s.InputTokens != 45 || s.OutputTokens != 27 {
		t.Errorf("tokens = %d/%d, want 45 in, 27 out", s.InputTokens, s.OutputTokens)
	}
	if s.ByModel["haiku"].Successes != 2 {
		t.Errorf("ByModel[haiku] = %+v, want 2 successes", s.ByModel["haiku"])
	}
	if s.ByCredential["secondary"].Calls != 1 {
		t.Errorf("ByCredential[secondary] = %+v, want 1 call", s.ByCredential["secondary"])
	}
	if s.AvgLatencyMS != 150 {
		t.Errorf("AvgLatencyMS = %v, want mean of 100 and 200", s.AvgLatencyMS)
	}

	// The since boundary is inclusive.
	recent, _ := m.Summarize(context.Background(), memBase.Add(time.Minute))
	if recent.Calls != 2 {
		t.Errorf("Summarize since +1m = %d calls, want 2", recent.Calls)
	}
}

func TestMemorySummarizeAdmissions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Admissions that never reach the upstream: a deferred request and a
	// cache hit. Neither has a credential.
	m.Store(ctx, usage.Record{ID: "q1", Time: memBase, Model: "sonnet", Source: usage.SourceDirect, Outcome: usage.OutcomeQueued})
	m.Store(ctx, usage.Record{ID: "c1", Time: memBase, Model: "haiku", Source: usage.SourceDirect, Outcome: usage.OutcomeSuccess, CacheHit: true})

	s, err := m.Summarize(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.Calls != 2 || s.Successes != 1 || s.CacheHits != 1 {
		t.Errorf("totals = %d/%d/%d, want 2 calls, 1 success, 1 cache hit", s.Calls, s.Successes, s.CacheHits)
	}
	if s.AvgLatencyMS != 0 {
		t.Errorf("AvgLatencyMS = %v, want 0 with no upstream calls", s.AvgLatencyMS)
	}
	if len(s.ByCredential) != 0 {
		t.Errorf("ByCredential = %+v, want no buckets for credential-less records", s.ByCredential)
	}
	if s.ByModel["sonnet"].Calls != 1 || s.ByModel["haiku"].CacheHits != 1 {
		t.Errorf("ByModel = %+v", s.ByModel)
	}
}

func TestMemoryDeleteBefore(t *testing.T) {
	m := seedMemory(t)

	removed, err := m.DeleteBefore(context.Background(), memBase.Add(time.Minute))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteBefore removed %d records, want 1", removed)
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d after prune, want 2", m.Len())
	}
}
