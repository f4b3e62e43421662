// Package worker drains the job queue. Each worker dequeues a job, leases
// a credential, makes the upstream call, and feeds the outcome back: queue
// transition, credential report, cache write, usage record. The call
// result flows through the worker explicitly; neither the client nor the
// queue calls back into the credential pool on its own.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/upstream"
	"mercator-hq/ganymede/pkg/usage"
)

// ErrStopTimeout reports that Stop gave up waiting for busy workers. Their
// jobs finish in the background and the queue transitions still apply, but
// the pool no longer tracks them.
var ErrStopTimeout = errors.New("worker pool stop timed out")

// Caller makes one upstream generation call. *upstream.Client implements
// it; tests substitute fakes.
type Caller interface {
	Generate(ctx context.Context, apiKey string, req upstream.Request) (*upstream.Result, error)
}

// Stats summarizes the pool since Start. Processed counts completed jobs,
// Failed counts failed attempts, so ErrorRate is failed attempts over all
// attempts and Throughput is completed jobs per second.
type Stats struct {
	Running       bool    `json:"running"`
	ActiveWorkers int     `json:"active_workers"`
	Processed     int64   `json:"processed"`
	Failed        int64   `json:"failed"`
	Throughput    float64 `json:"throughput_per_second"`
	ErrorRate     float64 `json:"error_rate"`
}

// Pool owns the worker goroutines.
type Pool struct {
	cfg      config.WorkersConfig
	queue    *queue.Queue
	creds    *credential.Pool
	cache    *cache.SemanticCache
	caller   Caller
	recorder *usage.Recorder
	metrics  *metrics.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
	running   bool
	startedAt time.Time

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	now func() time.Time
}

// New wires a pool to its collaborators. The cache and recorder may be
// nil; a pool without them still drains the queue.
func New(cfg config.WorkersConfig, q *queue.Queue, creds *credential.Pool, sc *cache.SemanticCache, caller Caller, recorder *usage.Recorder, reg *metrics.Registry, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry(config.MetricsConfig{})
	}
	return &Pool{
		cfg:      cfg,
		queue:    q,
		creds:    creds,
		cache:    sc,
		caller:   caller,
		recorder: recorder,
		metrics:  reg,
		logger:   logger.With("component", "worker"),
		now:      time.Now,
	}
}

// Start launches the worker goroutines. A non-positive concurrency falls
// back to the configured value. Starting a running pool is a no-op.
func (p *Pool) Start(concurrency int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	if concurrency <= 0 {
		concurrency = p.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	p.cancel = cancel
	p.wg = wg
	p.running = true
	p.startedAt = p.now()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go p.run(ctx, i, wg)
	}
	p.logger.Info("worker pool started", "concurrency", concurrency)
}

// Stop signals workers to finish their current job and pick up no new one,
// then waits up to the configured stop timeout. Stopping a stopped pool is
// a no-op.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	wg := p.wg
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timeout := p.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-time.After(timeout):
		p.logger.Warn("worker pool stop timed out, abandoning busy workers",
			"timeout", timeout,
			"still_active", p.active.Load())
		return ErrStopTimeout
	}
}

// AggregateStats reports work rates since Start.
func (p *Pool) AggregateStats() Stats {
	p.mu.Lock()
	running := p.running
	startedAt := p.startedAt
	p.mu.Unlock()

	processed := p.processed.Load()
	failed := p.failed.Load()

	s := Stats{
		Running:       running,
		ActiveWorkers: int(p.active.Load()),
		Processed:     processed,
		Failed:        failed,
	}
	if total := processed + failed; total > 0 {
		s.ErrorRate = float64(failed) / float64(total)
	}
	if !startedAt.IsZero() {
		if elapsed := p.now().Sub(startedAt).Seconds(); elapsed > 0 {
			s.Throughput = float64(processed) / elapsed
		}
	}
	return s
}

func (p *Pool) run(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := p.logger.With("worker", id)

	for {
		if ctx.Err() != nil {
			return
		}
		job := p.queue.Dequeue()
		if job == nil {
			if !p.sleep(ctx, p.pollInterval()) {
				return
			}
			continue
		}
		// Shutdown may have raced the dequeue; hand the job back untouched.
		if ctx.Err() != nil {
			p.queue.Release(job.ID)
			return
		}
		p.process(ctx, logger, job)
	}
}

// process runs one attempt of one job.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	lease, err := p.creds.Select()
	if err != nil {
		// Every credential is open, exhausted, or disabled. The job goes
		// back to the front of the queue untouched so capacity exhaustion
		// never consumes its attempt budget.
		p.queue.Release(job.ID)
		logger.Debug("no credential available, backing off", "job_id", job.ID)
		p.sleep(ctx, p.backoff())
		return
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	timeout := p.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	// Detached from the pool context: a graceful stop lets this call run
	// to completion instead of turning shutdown into job failures.
	callCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := p.now()
	res, err := p.caller.Generate(callCtx, lease.Key, job.Request)
	elapsed := p.now().Sub(start)
	p.metrics.Increment("upstream_requests_total", metrics.Labels{
		"credential": lease.CredentialID,
		"status":     upstream.ErrorClass(err),
	})
	p.metrics.Observe("upstream_duration_seconds", elapsed.Seconds(), nil)

	if err != nil {
		p.creds.ReportFailure(lease.CredentialID, err)
		status := p.queue.MarkFailed(job.ID, err)
		if status == queue.StatusFailed {
			p.metrics.Increment("queue_dead_letter_total", nil)
		} else {
			p.metrics.Increment("queue_retried_total", nil)
		}
		p.failed.Add(1)
		p.record(usage.Record{
			RequestID:    job.ID,
			CredentialID: lease.CredentialID,
			Model:        job.Request.Model,
			LatencyMS:    elapsed.Milliseconds(),
			Source:       usage.SourceWorker,
			Outcome:      upstream.ErrorClass(err),
			Error:        err.Error(),
		})
		logger.Warn("job attempt failed",
			"job_id", job.ID,
			"credential_id", lease.CredentialID,
			"attempt", job.Attempts+1,
			"max_attempts", job.MaxAttempts,
			"error_class", upstream.ErrorClass(err),
			"error", err)
		return
	}

	p.creds.ReportSuccess(lease.CredentialID)
	payload, _ := json.Marshal(res)
	// Cache before completing so a poller that sees the finished job can
	// already hit the cache with the same prompt.
	if p.cache != nil {
		p.cache.Store(job.Request.CacheText(), job.Request.Model, payload, cache.Usage{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		})
	}
	p.queue.MarkCompleted(job.ID, payload)
	p.metrics.Increment("queue_completed_total", nil)
	p.processed.Add(1)
	p.record(usage.Record{
		RequestID:    job.ID,
		CredentialID: lease.CredentialID,
		Model:        res.Model,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		LatencyMS:    res.LatencyMS,
		Source:       usage.SourceWorker,
		Outcome:      usage.OutcomeSuccess,
	})
	logger.Info("job completed",
		"job_id", job.ID,
		"credential_id", lease.CredentialID,
		"latency_ms", res.LatencyMS)
}

func (p *Pool) record(rec usage.Record) {
	if p.recorder != nil {
		p.recorder.Record(rec)
	}
}

// sleep waits d unless ctx is cancelled first, reporting whether the pool
// should keep running.
func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Pool) pollInterval() time.Duration {
	if p.cfg.PollInterval > 0 {
		return p.cfg.PollInterval
	}
	return 250 * time.Millisecond
}

func (p *Pool) backoff() time.Duration {
	if p.cfg.Backoff > 0 {
		return p.cfg.Backoff
	}
	return time.Second
}
