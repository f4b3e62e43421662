// Package metrics provides the process-wide metric registry every gateway
// subsystem reports into.
//
// # Overview
//
// The Registry wraps a dedicated Prometheus registry and creates series
// lazily on first use, so subsystems update metrics by stable name:
//
//	reg.Increment("cache_hits_total", metrics.Labels{"kind": "exact"})
//	reg.Set("queue_pending", 12, nil)
//	reg.Observe("upstream_duration_seconds", 0.84, metrics.Labels{"credential": "primary"})
//
// A name is bound to one kind and one label-key set on first use. All
// series live under the configured namespace and subsystem (default
// mercator_ganymede_*).
//
// # Exposition
//
// Handler serves the standard Prometheus text format; the optional refresh
// callback runs before each scrape so structural gauges (queue depth,
// circuit counts, capacity) are sampled at collection time. Exposition
// returns the same text for programmatic use and Summary returns the
// series as structured points for the JSON admin surface.
//
// # Standard series
//
// Admission: requests_total{outcome}, request_duration_seconds{outcome}.
// Pool: credential_requests_total, credential_failures_total,
// circuit_transitions_total, credentials_total/healthy/degraded/circuit_open,
// capacity_rpm_used/max, capacity_daily_used/max.
// Cache: cache_hits_total{kind}, cache_misses_total, cache_entries,
// cache_hit_rate.
// Queue: queue_enqueued_total, queue_completed_total, queue_retried_total,
// queue_dead_letter_total, queue_pending/processing/completed/failed,
// queue_wait_seconds_avg, queue_processing_seconds_avg.
// Workers: workers_active, worker_jobs_total{status}.
// Upstream: upstream_requests_total{credential,status},
// upstream_duration_seconds.
// Process: uptime_seconds, memory_alloc_bytes, memory_sys_bytes.
package metrics
