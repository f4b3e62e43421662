package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/upstream"
	"mercator-hq/ganymede/pkg/usage"
	"mercator-hq/ganymede/pkg/usage/storage"
)

// fakeCaller scripts upstream behavior: the first failCalls calls return
// failWith, every other call succeeds after delay. A cancelled context
// during the delay returns a timeout, like the real client.
type fakeCaller struct {
	mu        sync.Mutex
	calls     int
	failCalls int
	failWith  error
	delay     time.Duration
}

func (f *fakeCaller) Generate(ctx context.Context, _ string, req upstream.Request) (*upstream.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		t := time.NewTimer(f.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, &upstream.TimeoutError{Timeout: f.delay}
		case <-t.C:
		}
	}
	if n <= f.failCalls {
		return nil, f.failWith
	}
	return &upstream.Result{
		Text:       "response to " + req.Prompt,
		Model:      req.Model,
		StopReason: "end_turn",
		Usage:      upstream.Usage{InputTokens: 10, OutputTokens: 20},
		LatencyMS:  42,
	}, nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	queue    *queue.Queue
	creds    *credential.Pool
	cache    *cache.SemanticCache
	store    *storage.Memory
	recorder *usage.Recorder
}

func newTestEnv(t *testing.T, creds []config.CredentialConfig) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	pool, err := credential.NewPool(creds, config.PoolConfig{
		FailureThreshold:  3,
		Cooldown:          30 * time.Second,
		CooldownMax:       10 * time.Minute,
		WarningThreshold:  0.8,
		CriticalThreshold: 0.95,
		AlertHistory:      20,
	}, nil, logger)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	c := cache.New(config.CacheConfig{Enabled: true, MaxEntries: 64, TTL: time.Hour}, logger)
	sc := cache.NewSemanticCache(c, cache.NewLocalEmbedder(32),
		config.SemanticConfig{Enabled: true, Threshold: 0.95, Window: 16}, logger)

	store := storage.NewMemory()
	rec := usage.NewRecorder(config.UsageConfig{Enabled: true, Buffer: 64}, store, logger)
	t.Cleanup(func() { rec.Close() })

	return &testEnv{
		queue:    queue.New(config.QueueConfig{MaxPending: 100, DefaultMaxAttempts: 3}, logger),
		creds:    pool,
		cache:    sc,
		store:    store,
		recorder: rec,
	}
}

func oneCredential(disabled bool) []config.CredentialConfig {
	return []config.CredentialConfig{{
		ID:         "primary",
		Key:        "sk-test-primary",
		RPMLimit:   100,
		DailyLimit: 1000,
		Disabled:   disabled,
	}}
}

func workerConfig() config.WorkersConfig {
	return config.WorkersConfig{
		Concurrency:    1,
		PollInterval:   5 * time.Millisecond,
		Backoff:        5 * time.Millisecond,
		RequestTimeout: time.Second,
		StopTimeout:    2 * time.Second,
	}
}

func newTestPool(env *testEnv, cfg config.WorkersConfig, caller Caller) *Pool {
	return New(cfg, env.queue, env.creds, env.cache, caller, env.recorder, nil, slog.New(slog.DiscardHandler))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPoolProcessesJob(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{}
	p := newTestPool(env, workerConfig(), caller)

	req := upstream.Request{Model: "claude-3-haiku", Prompt: "What is Go?"}
	id, err := env.queue.Enqueue(req, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)
	defer p.Stop()

	waitFor(t, "job completion", func() bool {
		job, ok := env.queue.Get(id)
		return ok && job.Status == queue.StatusCompleted
	})

	job, _ := env.queue.Get(id)
	if job.Attempts != 1 {
		t.Errorf("job took %d attempts, want 1", job.Attempts)
	}
	var res upstream.Result
	if err := json.Unmarshal(job.Result, &res); err != nil {
		t.Fatalf("job result does not decode: %v", err)
	}
	if res.Text != "response to What is Go?" {
		t.Errorf("result text = %q", res.Text)
	}

	// The worker fed the success back to the credential pool.
	view := env.creds.Snapshot()[0]
	if view.ConsecutiveFailures != 0 || view.LastSuccess == nil {
		t.Errorf("credential after success = %+v", view)
	}
	if view.MinuteUsed != 1 {
		t.Errorf("MinuteUsed = %d, want 1 reserved slot", view.MinuteUsed)
	}

	// The response is cached for future lookups with the same prompt.
	entry, ok := env.cache.Lookup(req.CacheText(), req.Model)
	if !ok {
		t.Fatal("completed job response was not cached")
	}
	if entry.Usage.OutputTokens != 20 {
		t.Errorf("cached usage = %+v", entry.Usage)
	}

	// And the call was recorded for accounting.
	waitFor(t, "usage record", func() bool { return env.store.Len() == 1 })
	recs, err := env.recorder.Query(context.Background(), usage.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	rec := recs[0]
	if rec.Source != usage.SourceWorker || rec.Outcome != usage.OutcomeSuccess {
		t.Errorf("usage record = %+v", rec)
	}
	if rec.RequestID != id || rec.CredentialID != "primary" || rec.OutputTokens != 20 {
		t.Errorf("usage record = %+v", rec)
	}
}

func TestPoolRetriesAndDeadLetters(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{
		failCalls: 1 << 30,
		failWith:  &upstream.ServerError{StatusCode: 500, Message: "overloaded"},
	}
	p := newTestPool(env, workerConfig(), caller)

	id, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "doomed"}, 2)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)
	defer p.Stop()

	waitFor(t, "dead-lettering", func() bool {
		job, ok := env.queue.Get(id)
		return ok && job.Status == queue.StatusFailed
	})

	job, _ := env.queue.Get(id)
	if job.Attempts != 2 {
		t.Errorf("job made %d attempts, want exactly its budget of 2", job.Attempts)
	}
	if !strings.Contains(job.LastError, "overloaded") {
		t.Errorf("LastError = %q", job.LastError)
	}

	dlq := env.queue.GetDLQJobs(0)
	if len(dlq) != 1 || dlq[0].ID != id {
		t.Fatalf("DLQ = %+v, want the dead-lettered job", dlq)
	}

	// Both failures were reported; two is below the breaker threshold of
	// three, so the credential stays closed.
	view := env.creds.Snapshot()[0]
	if view.ConsecutiveFailures != 2 || view.Circuit != "closed" {
		t.Errorf("credential after failures = %+v", view)
	}

	stats := p.AggregateStats()
	if stats.Processed != 0 || stats.Failed != 2 {
		t.Errorf("stats = %+v, want 0 processed, 2 failed attempts", stats)
	}
	if stats.ErrorRate != 1 {
		t.Errorf("ErrorRate = %v, want 1", stats.ErrorRate)
	}
}

func TestPoolNoCredentialKeepsAttemptBudget(t *testing.T) {
	env := newTestEnv(t, oneCredential(true))
	caller := &fakeCaller{}
	p := newTestPool(env, workerConfig(), caller)

	id, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "patient"}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)

	// Let the worker cycle through several dequeue-release-backoff rounds
	// against the disabled credential, then stop it so the job is at rest.
	time.Sleep(50 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	job, _ := env.queue.Get(id)
	if job.Status != queue.StatusPending {
		t.Fatalf("job status = %s, want pending while no credential is available", job.Status)
	}
	if job.Attempts != 0 {
		t.Errorf("job consumed %d attempts without an upstream call", job.Attempts)
	}
	if caller.callCount() != 0 {
		t.Errorf("upstream was called %d times with no credential", caller.callCount())
	}

	// Capacity returns: the same credential is re-enabled via hot reload.
	if err := env.creds.UpdateCredentials(oneCredential(false)); err != nil {
		t.Fatalf("UpdateCredentials failed: %v", err)
	}
	p.Start(1)
	defer p.Stop()
	waitFor(t, "completion after credential recovery", func() bool {
		job, ok := env.queue.Get(id)
		return ok && job.Status == queue.StatusCompleted
	})
}

func TestPoolGracefulStopFinishesInFlight(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{delay: 100 * time.Millisecond}
	p := newTestPool(env, workerConfig(), caller)

	id, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "slow"}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)
	waitFor(t, "call in flight", func() bool { return caller.callCount() >= 1 })

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	job, _ := env.queue.Get(id)
	if job.Status != queue.StatusCompleted {
		t.Errorf("in-flight job status after graceful stop = %s, want completed", job.Status)
	}
	if stats := p.AggregateStats(); stats.Running {
		t.Error("pool still reports running after Stop")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
}

func TestPoolStopTimeout(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{delay: 500 * time.Millisecond}
	cfg := workerConfig()
	cfg.StopTimeout = 20 * time.Millisecond
	p := newTestPool(env, cfg, caller)

	id, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "very slow"}, 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)
	waitFor(t, "call in flight", func() bool { return caller.callCount() >= 1 })

	if err := p.Stop(); !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("Stop = %v, want ErrStopTimeout", err)
	}

	// The abandoned worker still finishes and records its job.
	waitFor(t, "abandoned worker finishing", func() bool {
		job, ok := env.queue.Get(id)
		return ok && job.Status == queue.StatusCompleted
	})
}

func TestPoolTimeoutCountsAsFailure(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{delay: time.Second}
	cfg := workerConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	p := newTestPool(env, cfg, caller)

	id, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "stuck"}, 1)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p.Start(1)
	defer p.Stop()

	waitFor(t, "timeout dead-lettering", func() bool {
		job, ok := env.queue.Get(id)
		return ok && job.Status == queue.StatusFailed
	})

	job, _ := env.queue.Get(id)
	if !strings.Contains(job.LastError, "timed out") {
		t.Errorf("LastError = %q, want a timeout", job.LastError)
	}

	// The timeout consumed the attempt and the credential took the blame.
	view := env.creds.Snapshot()[0]
	if view.ConsecutiveFailures != 1 || view.LastFailure == nil {
		t.Errorf("credential after timeout = %+v", view)
	}

	waitFor(t, "usage record", func() bool { return env.store.Len() == 1 })
	recs, _ := env.recorder.Query(context.Background(), usage.Query{})
	if recs[0].Outcome != "timeout" {
		t.Errorf("usage outcome = %q, want timeout", recs[0].Outcome)
	}
}

func TestPoolAggregateStats(t *testing.T) {
	env := newTestEnv(t, oneCredential(false))
	caller := &fakeCaller{
		failCalls: 1,
		failWith:  &upstream.ServerError{StatusCode: 503, Message: "overloaded"},
	}
	p := newTestPool(env, workerConfig(), caller)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	p.now = clock.Now

	if before := p.AggregateStats(); before.Running || before.Throughput != 0 {
		t.Errorf("stats before Start = %+v", before)
	}

	// Six jobs through one worker: the first call fails job one's first
	// attempt, the retry succeeds later, so seven attempts in total.
	for i := 0; i < 6; i++ {
		if _, err := env.queue.Enqueue(upstream.Request{Model: "claude-3-haiku", Prompt: "job"}, 0); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	p.Start(1)
	defer p.Stop()

	waitFor(t, "all jobs processed", func() bool {
		s := p.AggregateStats()
		return s.Processed == 6 && s.ActiveWorkers == 0
	})

	clock.Advance(10 * time.Second)
	stats := p.AggregateStats()
	if !stats.Running {
		t.Error("stats.Running = false while started")
	}
	if stats.Processed != 6 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 6 processed, 1 failed attempt", stats)
	}
	if stats.Throughput != 0.6 {
		t.Errorf("Throughput = %v, want 6 jobs over 10 seconds", stats.Throughput)
	}
	if want := float64(1) / float64(7); stats.ErrorRate != want {
		t.Errorf("ErrorRate = %v, want %v", stats.ErrorRate, want)
	}
}
