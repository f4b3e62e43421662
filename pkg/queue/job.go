package queue

import (
	"time"

	"mercator-hq/ganymede/pkg/upstream"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	// StatusPending means the job is waiting in the queue.
	StatusPending Status = "pending"

	// StatusProcessing means exactly one worker currently owns the job.
	StatusProcessing Status = "processing"

	// StatusCompleted means the job finished with a result.
	StatusCompleted Status = "completed"

	// StatusFailed means the job exhausted its attempt budget and sits in
	// the dead-letter set until an operator retries or inspects it.
	StatusFailed Status = "failed"
)

// Job is one deferred generation request and its full lifecycle record.
// Completed and failed jobs stay queryable until retention pruning; failed
// jobs are never pruned.
type Job struct {
	ID          string           `json:"id"`
	Request     upstream.Request `json:"request"`
	Status      Status           `json:"status"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	LastError   string           `json:"last_error,omitempty"`
	Result      []byte           `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   time.Time        `json:"started_at,omitzero"`
	CompletedAt time.Time        `json:"completed_at,omitzero"`

	// firstDequeue and waitSampled track the enqueue-to-first-pickup wait
	// measurement. A release resets firstDequeue: a pickup that found no
	// credential does not end the job's wait.
	firstDequeue time.Time
	waitSampled  bool
}
