// Package health aggregates subsystem checks into one overall status for
// Mercator Ganymede.
//
// # Overview
//
// Each subsystem registers a named check; Check runs them all and reduces
// the results to the worst individual grade on a four-level scale:
//
//	healthy < degraded < unhealthy < critical
//
// The snapshot is recomputed on every call and never persisted, so checks
// must be cheap, side-effect free reads. The standard checks in checks.go
// probe the credential pool, the response cache, the job queue, and the
// worker pool that way, with the promotion thresholds (open-circuit
// fraction, dead-letter size, backlog ratio) taken from config.
//
// # Endpoints
//
//   - /health: full snapshot; 200 for healthy and degraded, 503 for
//     unhealthy and critical
//   - /health/live: liveness; always 200 while the process runs
//   - /health/ready: readiness gate; 503 until the server is listening
//     and again once shutdown begins
//
// # Usage
//
//	checker := health.New()
//	health.RegisterStandardChecks(checker, cfg.Health, pool, cache, queue, workers)
//
//	mux.HandleFunc("/health", checker.Handler())
//	mux.HandleFunc("/health/live", checker.LivenessHandler())
//	mux.HandleFunc("/health/ready", checker.ReadinessHandler())
//
// Custom checks register the same way:
//
//	checker.RegisterCheck("usage_storage", func(ctx context.Context) health.CheckResult {
//	    if err := store.Ping(ctx); err != nil {
//	        return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
//	    }
//	    return health.CheckResult{Status: health.StatusHealthy}
//	})
//
// # Example Response
//
// A degraded snapshot (/health, served with 200):
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "credential_pool": {"status": "degraded", "message": "2 of 3 credentials healthy"},
//	        "response_cache": {"status": "healthy"},
//	        "job_queue": {"status": "healthy"},
//	        "worker_pool": {"status": "healthy"}
//	    },
//	    "timestamp": "2026-06-11T10:30:00Z",
//	    "uptime_seconds": 8130.4
//	}
//
// Liveness is deliberately check-free: a live process with an unhealthy
// dependency must be drained, not restarted, so only /health and
// /health/ready consider subsystem state.
package health
