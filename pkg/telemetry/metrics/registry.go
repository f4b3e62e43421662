package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Labels is the label set attached to a metric update.
type Labels = prometheus.Labels

// Registry is the process-wide metric store every subsystem reports into.
// Series are created lazily on first use under the configured namespace and
// subsystem, so callers update metrics by stable name without touching
// Prometheus types.
//
// A metric name is bound to one kind (counter, gauge, or histogram) and one
// label-key set on first use; later updates must match both.
type Registry struct {
	cfg      config.MetricsConfig
	registry *prometheus.Registry
	start    time.Time

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// Latency buckets for upstream text-generation calls (100ms - 30s).
var durationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}

// NewRegistry creates a Registry with its own Prometheus registry and the
// process gauges (uptime, memory) already registered.
func NewRegistry(cfg config.MetricsConfig) *Registry {
	r := &Registry{
		cfg:        cfg,
		registry:   prometheus.NewRegistry(),
		start:      time.Now(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	if cfg.Enabled {
		r.registerProcessGauges()
	}

	return r
}

// Increment adds one to a counter series.
func (r *Registry) Increment(name string, labels Labels) {
	r.Add(name, 1, labels)
}

// Add adds a delta to a counter series.
func (r *Registry) Add(name string, delta float64, labels Labels) {
	if !r.cfg.Enabled {
		return
	}
	r.counterVec(name, labelKeys(labels)).With(labels).Add(delta)
}

// Set sets a gauge series to a value.
func (r *Registry) Set(name string, value float64, labels Labels) {
	if !r.cfg.Enabled {
		return
	}
	r.gaugeVec(name, labelKeys(labels)).With(labels).Set(value)
}

// Observe records a value into a histogram series.
func (r *Registry) Observe(name string, value float64, labels Labels) {
	if !r.cfg.Enabled {
		return
	}
	r.histogramVec(name, labelKeys(labels)).With(labels).Observe(value)
}

// Uptime returns the time elapsed since the registry was created, which is
// process start for the singleton wired in at boot.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.start)
}

// Registry exposes the underlying Prometheus registry for the HTTP handler.
func (r *Registry) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) counterVec(name string, keys []string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.counters[name]; ok {
		return vec
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      name,
		Help:      helpFor(name),
	}, keys)
	r.registry.MustRegister(vec)
	r.counters[name] = vec
	return vec
}

func (r *Registry) gaugeVec(name string, keys []string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.gauges[name]; ok {
		return vec
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      name,
		Help:      helpFor(name),
	}, keys)
	r.registry.MustRegister(vec)
	r.gauges[name] = vec
	return vec
}

func (r *Registry) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.histograms[name]; ok {
		return vec
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.cfg.Namespace,
		Subsystem: r.cfg.Subsystem,
		Name:      name,
		Help:      helpFor(name),
		Buckets:   durationBuckets,
	}, keys)
	r.registry.MustRegister(vec)
	r.histograms[name] = vec
	return vec
}

func labelKeys(labels Labels) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// help text for the standard series; auto-registered names fall back to a
// generated line.
var helpText = map[string]string{
	"requests_total":               "Admission requests by outcome (hit, semantic_hit, direct, queued, unavailable).",
	"request_duration_seconds":     "Admission latency by outcome.",
	"credential_requests_total":    "Requests routed to each credential.",
	"credential_failures_total":    "Upstream failures reported against each credential.",
	"circuit_transitions_total":    "Circuit breaker transitions by credential and target state.",
	"credentials_total":            "Configured credentials.",
	"credentials_healthy":          "Credentials with a closed circuit and headroom.",
	"credentials_degraded":         "Credentials probing or near their limits.",
	"credentials_circuit_open":     "Credentials with an open circuit.",
	"capacity_rpm_used":            "Requests admitted across the pool in the rolling minute.",
	"capacity_rpm_max":             "Combined per-minute limit across the pool.",
	"capacity_daily_used":          "Requests admitted across the pool in the rolling day.",
	"capacity_daily_max":           "Combined daily limit across the pool.",
	"cache_hits_total":             "Cache hits by kind (exact, semantic).",
	"cache_misses_total":           "Cache misses.",
	"cache_entries":                "Live cache entries.",
	"cache_hit_rate":               "Lifetime cache hit rate.",
	"queue_enqueued_total":         "Jobs accepted into the queue.",
	"queue_completed_total":        "Jobs completed by workers.",
	"queue_retried_total":          "Jobs requeued after a failed attempt.",
	"queue_dead_letter_total":      "Jobs moved to the dead-letter set.",
	"queue_pending":                "Jobs waiting for a worker.",
	"queue_processing":             "Jobs currently held by workers.",
	"queue_completed":              "Completed jobs retained for lookup.",
	"queue_failed":                 "Dead-letter jobs.",
	"queue_wait_seconds_avg":       "Running average wait before first processing.",
	"queue_processing_seconds_avg": "Running average processing duration.",
	"workers_active":               "Workers currently processing a job.",
	"worker_throughput":            "Jobs processed per second since the pool started.",
	"worker_error_rate":            "Fraction of processed jobs that failed.",
	"upstream_requests_total":      "Upstream calls by credential and status.",
	"upstream_duration_seconds":    "Upstream call latency.",
	"usage_records_total":          "Usage records accepted by the recorder.",
	"usage_records_dropped_total":  "Usage records dropped on a full buffer.",
	"uptime_seconds":               "Seconds since process start.",
	"memory_alloc_bytes":           "Bytes of allocated heap objects.",
	"memory_sys_bytes":             "Bytes of memory obtained from the OS.",
	"goroutines":                   "Live goroutines.",
}

func helpFor(name string) string {
	if help, ok := helpText[name]; ok {
		return help
	}
	return strings.ReplaceAll(name, "_", " ") + "."
}
