// Package queue is the deferred-work backbone of the gateway: a bounded
// in-memory FIFO of generation jobs with per-job attempt budgets and a
// dead-letter set for jobs that exhaust them.
//
// The queue is a monitor. Every transition happens under one lock, so a
// job can only ever be owned by one worker: Dequeue moves pending to
// processing, MarkCompleted and MarkFailed move processing to a terminal
// or re-queued state, and Release hands a job back to the front of the
// queue untouched when its pickup turned out to be premature.
package queue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/upstream"
)

// ErrQueueFull is returned by Enqueue when the pending backlog is at
// capacity. Callers treat it as backpressure and surface an unavailable
// outcome, not a server fault.
var ErrQueueFull = errors.New("queue: pending backlog at capacity")

// Stats is a point-in-time summary of queue occupancy and latency.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Capacity   int `json:"capacity"`

	// AverageWaitSeconds is the running mean of enqueue-to-first-pickup
	// time. AverageProcessingSeconds is the running mean per attempt.
	AverageWaitSeconds       float64 `json:"average_wait_seconds"`
	AverageProcessingSeconds float64 `json:"average_processing_seconds"`
}

// Queue holds jobs across their whole lifecycle. Terminal jobs stay in the
// table for status queries until pruned; the dead-letter set is the ordered
// list of failed jobs and is exempt from pruning.
type Queue struct {
	capacity           int
	defaultMaxAttempts int
	logger             *slog.Logger
	now                func() time.Time

	mu         sync.Mutex
	jobs       map[string]*Job
	pending    []string
	dlq        []string
	processing int
	completed  int

	waitCount int64
	waitMean  time.Duration
	procCount int64
	procMean  time.Duration
}

// New creates an empty queue.
func New(cfg config.QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		capacity:           cfg.MaxPending,
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		logger:             logger.With("component", "queue"),
		now:                time.Now,
		jobs:               make(map[string]*Job),
	}
}

// Enqueue appends a job to the back of the queue and returns its id.
// maxAttempts <= 0 uses the configured default. Returns ErrQueueFull when
// the pending backlog is at capacity.
func (q *Queue) Enqueue(req upstream.Request, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = q.defaultMaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.capacity {
		return "", ErrQueueFull
	}

	job := &Job{
		ID:          uuid.NewString(),
		Request:     req,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   q.now(),
	}
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job.ID)

	q.logger.Debug("job enqueued", "job_id", job.ID, "model", req.Model, "pending", len(q.pending))
	return job.ID, nil
}

// Dequeue hands the oldest pending job to the caller, or nil when the
// queue is empty. The returned copy is the caller's; the job is marked
// processing so no other worker can receive it.
func (q *Queue) Dequeue() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	id := q.pending[0]
	q.pending = q.pending[1:]

	job := q.jobs[id]
	job.Status = StatusProcessing
	job.StartedAt = q.now()
	if job.firstDequeue.IsZero() {
		job.firstDequeue = job.StartedAt
	}
	q.processing++

	out := *job
	return &out
}

// Release returns a processing job to the front of the queue with its
// attempt budget untouched. This is the path for a pickup that found no
// available credential: the job never really started, so its wait
// continues and the next Dequeue hands it out first.
func (q *Queue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.logger.Warn("release of job not in processing", "job_id", id)
		return
	}

	job.Status = StatusPending
	job.StartedAt = time.Time{}
	job.firstDequeue = time.Time{}
	q.processing--
	q.pending = append([]string{id}, q.pending...)
}

// MarkCompleted records a successful attempt and moves the job to
// completed.
func (q *Queue) MarkCompleted(id string, result []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.logger.Warn("completion for job not in processing", "job_id", id)
		return
	}

	done := q.now()
	q.recordAttemptLocked(job, done)

	job.Status = StatusCompleted
	job.Attempts++
	job.CompletedAt = done
	job.Result = result
	job.LastError = ""
	q.processing--
	q.completed++

	q.logger.Debug("job completed", "job_id", id, "attempts", job.Attempts)
}

// MarkFailed records a failed attempt and returns the job's new status:
// StatusPending while budget remains, StatusFailed once the job moves to
// the dead-letter set.
func (q *Queue) MarkFailed(id string, cause error) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != StatusProcessing {
		q.logger.Warn("failure for job not in processing", "job_id", id)
		if !ok {
			return ""
		}
		return job.Status
	}

	done := q.now()
	q.recordAttemptLocked(job, done)

	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}
	q.processing--

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		job.CompletedAt = done
		q.dlq = append(q.dlq, id)
		q.logger.Warn("job dead-lettered",
			"job_id", id,
			"attempts", job.Attempts,
			"error", job.LastError)
		return StatusFailed
	}

	job.Status = StatusPending
	q.pending = append(q.pending, id)
	q.logger.Debug("job re-queued",
		"job_id", id,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts)
	return StatusPending
}

// recordAttemptLocked folds the finished attempt into the latency means.
// The wait sample is taken once per job, on its first real attempt.
func (q *Queue) recordAttemptLocked(job *Job, done time.Time) {
	q.procCount++
	q.procMean += (done.Sub(job.StartedAt) - q.procMean) / time.Duration(q.procCount)

	if !job.waitSampled && !job.firstDequeue.IsZero() {
		job.waitSampled = true
		q.waitCount++
		q.waitMean += (job.firstDequeue.Sub(job.CreatedAt) - q.waitMean) / time.Duration(q.waitCount)
	}
}

// Get returns a copy of any job, in any state.
func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	out := *job
	return &out, true
}

// GetDLQJobs returns up to limit dead-letter jobs in failure order, oldest
// first. limit <= 0 returns the whole set.
func (q *Queue) GetDLQJobs(limit int) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.dlq)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Job, 0, n)
	for _, id := range q.dlq[:n] {
		out = append(out, *q.jobs[id])
	}
	return out
}

// RetryDLQJob moves a dead-letter job back to the end of the queue with a
// fresh attempt budget. Returns false if the id is not in the dead-letter
// set. The last error is kept so the record still shows why it failed.
func (q *Queue) RetryDLQJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, dlqID := range q.dlq {
		if dlqID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	q.dlq = append(q.dlq[:idx], q.dlq[idx+1:]...)

	job := q.jobs[id]
	job.Status = StatusPending
	job.Attempts = 0
	job.StartedAt = time.Time{}
	job.CompletedAt = time.Time{}
	q.pending = append(q.pending, id)

	q.logger.Info("dead-letter job retried", "job_id", id)
	return true
}

// Stats reports queue occupancy and running latency means.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Pending:                  len(q.pending),
		Processing:               q.processing,
		Completed:                q.completed,
		Failed:                   len(q.dlq),
		Capacity:                 q.capacity,
		AverageWaitSeconds:       q.waitMean.Seconds(),
		AverageProcessingSeconds: q.procMean.Seconds(),
	}
}

// Clear removes every job record and resets the latency means.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := len(q.jobs)
	q.jobs = make(map[string]*Job)
	q.pending = nil
	q.dlq = nil
	q.processing = 0
	q.completed = 0
	q.waitCount = 0
	q.waitMean = 0
	q.procCount = 0
	q.procMean = 0

	q.logger.Info("queue cleared", "removed", removed)
}

// PruneCompleted removes completed jobs whose terminal transition is older
// than the retention window and returns how many were removed. Dead-letter
// jobs are never pruned.
func (q *Queue) PruneCompleted(olderThan time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	removed := 0
	for id, job := range q.jobs {
		if job.Status == StatusCompleted && job.CompletedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	q.completed -= removed
	return removed
}
