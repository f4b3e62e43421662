package health

import (
	"context"
	"fmt"

	"mercator-hq/ganymede/pkg/cache"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credential"
	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/worker"
)

// Threshold fallbacks for zero config values.
const (
	defaultCircuitCriticalFraction = 0.5
	defaultDLQCriticalSize         = 100
	defaultQueueDegradedRatio      = 0.8
)

// RegisterStandardChecks wires the four subsystem probes with the
// configured thresholds.
func RegisterStandardChecks(c *Checker, cfg config.HealthConfig, pool *credential.Pool, sc *cache.SemanticCache, q *queue.Queue, workers *worker.Pool) {
	c.RegisterCheck("credential_pool", CredentialPoolCheck(pool, cfg.CircuitCriticalFraction))
	c.RegisterCheck("response_cache", ResponseCacheCheck(sc))
	c.RegisterCheck("job_queue", JobQueueCheck(q, cfg.DLQCriticalSize, cfg.QueueDegradedRatio))
	c.RegisterCheck("worker_pool", WorkerPoolCheck(workers, q))
}

// CredentialPoolCheck grades upstream capacity: critical when more than
// criticalFraction of the circuits are open, unhealthy when no credential
// is usable at all, degraded when any credential is impaired.
func CredentialPoolCheck(pool *credential.Pool, criticalFraction float64) CheckFunc {
	if criticalFraction <= 0 {
		criticalFraction = defaultCircuitCriticalFraction
	}
	return func(context.Context) CheckResult {
		hs := pool.HealthStatus()
		switch {
		case float64(hs.CircuitOpen) > criticalFraction*float64(hs.Total):
			return CheckResult{
				Status:  StatusCritical,
				Message: fmt.Sprintf("%d of %d credential circuits open", hs.CircuitOpen, hs.Total),
			}
		case hs.Healthy == 0:
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "no credential currently usable",
			}
		case hs.Degraded > 0 || hs.CircuitOpen > 0:
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d of %d credentials healthy", hs.Healthy, hs.Total),
			}
		default:
			return CheckResult{Status: StatusHealthy}
		}
	}
}

// ResponseCacheCheck reports the cache operational. The cache cannot fail
// at runtime; a nil cache means caching is configured off, which is not a
// health problem.
func ResponseCacheCheck(sc *cache.SemanticCache) CheckFunc {
	return func(context.Context) CheckResult {
		if sc == nil {
			return CheckResult{Status: StatusHealthy, Message: "response caching disabled"}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// JobQueueCheck grades the deferred-work backlog: critical when the
// dead-letter set exceeds criticalDLQ, degraded when the pending backlog
// passes degradedRatio of capacity.
func JobQueueCheck(q *queue.Queue, criticalDLQ int, degradedRatio float64) CheckFunc {
	if criticalDLQ <= 0 {
		criticalDLQ = defaultDLQCriticalSize
	}
	if degradedRatio <= 0 {
		degradedRatio = defaultQueueDegradedRatio
	}
	return func(context.Context) CheckResult {
		stats := q.Stats()
		switch {
		case stats.Failed > criticalDLQ:
			return CheckResult{
				Status:  StatusCritical,
				Message: fmt.Sprintf("%d jobs dead-lettered", stats.Failed),
			}
		case float64(stats.Pending) > degradedRatio*float64(stats.Capacity):
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("backlog at %d of %d", stats.Pending, stats.Capacity),
			}
		default:
			return CheckResult{Status: StatusHealthy}
		}
	}
}

// WorkerPoolCheck grades the queue drain: a stopped pool is degraded, and
// unhealthy when work is already waiting for it.
func WorkerPoolCheck(workers *worker.Pool, q *queue.Queue) CheckFunc {
	return func(context.Context) CheckResult {
		stats := workers.AggregateStats()
		if stats.Running {
			return CheckResult{Status: StatusHealthy}
		}
		if pending := q.Stats().Pending; pending > 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("worker pool stopped with %d jobs pending", pending),
			}
		}
		return CheckResult{Status: StatusDegraded, Message: "worker pool stopped"}
	}
}
