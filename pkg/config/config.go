package config

import "time"

// Config is the root configuration structure for Mercator Ganymede.
// It contains all configuration sections for the HTTP server, the upstream
// provider, the credential pool, the response cache, the job queue, the
// worker pool, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and the administrative API key.
	Server ServerConfig `yaml:"server"`

	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Upstream contains configuration for the upstream provider endpoint.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Credentials is the set of upstream credentials the pool rotates over.
	// At least one credential is required.
	Credentials []CredentialConfig `yaml:"credentials"`

	// Pool contains credential pool tuning: circuit breaker thresholds,
	// cool-downs, and usage alert thresholds.
	Pool PoolConfig `yaml:"pool"`

	// Cache contains response cache configuration including the semantic
	// similarity layer and optional persistence.
	Cache CacheConfig `yaml:"cache"`

	// Queue contains deferred job queue configuration.
	Queue QueueConfig `yaml:"queue"`

	// Workers contains worker pool configuration.
	Workers WorkersConfig `yaml:"workers"`

	// Health contains health aggregation thresholds.
	Health HealthConfig `yaml:"health"`

	// Metrics contains metrics exposition configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Usage contains usage recording configuration.
	Usage UsageConfig `yaml:"usage"`

	// Maintenance contains background maintenance schedules.
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the server to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8090", "0.0.0.0:8090").
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. A zero or negative value means no timeout.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// If requests are still in-flight after this timeout, the server will
	// force shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout is the per-request deadline applied by the timeout
	// middleware to the admission endpoints.
	// Default: 90s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// AdminKey guards the /admin endpoints. Requests must carry the key in
	// the X-Admin-Key header. Empty disables the check (development only).
	// Supports environment lookup via AdminKeyEnv.
	AdminKey string `yaml:"admin_key"`

	// AdminKeyEnv names an environment variable holding the admin key.
	// Takes precedence over AdminKey when set and non-empty.
	AdminKeyEnv string `yaml:"admin_key_env"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Use ["*"] to allow all origins (not recommended for production).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Content-Type", "X-Request-ID", "X-Admin-Key"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// Output selects the log destination.
	// Options: "stdout", "stderr", or a file path.
	// Default: "stderr"
	Output string `yaml:"output"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// UpstreamConfig contains configuration for the upstream provider endpoint.
type UpstreamConfig struct {
	// BaseURL is the base URL for the provider's API endpoint.
	// Default: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url"`

	// APIVersion is the value sent in the anthropic-version header.
	// Default: "2023-06-01"
	APIVersion string `yaml:"api_version"`

	// DefaultModel is used when a request does not name a model.
	// Default: "claude-3-5-sonnet-20241022"
	DefaultModel string `yaml:"default_model"`

	// MaxTokens is the default completion budget per request.
	// Default: 1024
	MaxTokens int `yaml:"max_tokens"`

	// Timeout is the maximum duration for a single upstream call.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the connection pool size across all hosts.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxConnsPerHost limits connections to the upstream host.
	// Default: 50
	MaxConnsPerHost int `yaml:"max_conns_per_host"`
}

// CredentialConfig describes a single upstream credential.
type CredentialConfig struct {
	// ID is the stable identifier used in logs, metrics, and alerts.
	// Required, unique across the pool.
	ID string `yaml:"id"`

	// Key is the credential secret. Prefer KeyEnv so configuration files
	// never hold raw secrets.
	Key string `yaml:"key"`

	// KeyEnv names an environment variable holding the secret. Takes
	// precedence over Key when set and non-empty.
	KeyEnv string `yaml:"key_env"`

	// RPMLimit is the maximum requests routed to this credential per
	// rolling minute. Required, must be positive.
	RPMLimit int `yaml:"rpm_limit"`

	// DailyLimit is the maximum requests per rolling 24 hours.
	// Required, must be positive.
	DailyLimit int `yaml:"daily_limit"`

	// Disabled removes the credential from rotation without deleting its
	// configuration. May be toggled by hot reload.
	// Default: false
	Disabled bool `yaml:"disabled"`
}

// PoolConfig contains credential pool tuning.
type PoolConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// credential's circuit.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is the initial open-circuit cool-down. Successive openings
	// double it up to CooldownMax.
	// Default: 30s
	Cooldown time.Duration `yaml:"cooldown"`

	// CooldownMax caps the exponential cool-down growth.
	// Default: 10m
	CooldownMax time.Duration `yaml:"cooldown_max"`

	// WarningThreshold is the usage fraction of a limit that emits a
	// warning alert. Range (0, 1].
	// Default: 0.8
	WarningThreshold float64 `yaml:"warning_threshold"`

	// CriticalThreshold is the usage fraction that emits a critical alert.
	// Range (0, 1], must be >= WarningThreshold.
	// Default: 0.95
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// AlertHistory bounds the retained alert list. Oldest entries are
	// dropped first.
	// Default: 100
	AlertHistory int `yaml:"alert_history"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	// Enabled controls whether responses are cached at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxEntries bounds the cache; least-recently-used entries are evicted
	// beyond it.
	// Default: 1000
	MaxEntries int `yaml:"max_entries"`

	// TTL is the time-to-live for cache entries.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`

	// PersistPath, when set, backs the cache with a SQLite file so entries
	// survive restarts. Empty keeps the cache memory-only.
	PersistPath string `yaml:"persist_path"`

	// Semantic contains the similarity matching layer configuration.
	Semantic SemanticConfig `yaml:"semantic"`
}

// SemanticConfig contains semantic cache configuration.
type SemanticConfig struct {
	// Enabled turns on similarity matching for near-duplicate prompts.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Threshold is the minimum cosine similarity for a semantic hit.
	// Range (0, 1].
	// Default: 0.92
	Threshold float64 `yaml:"threshold"`

	// Window is how many recent entries are candidates for similarity
	// comparison on each lookup.
	// Default: 256
	Window int `yaml:"window"`

	// Dimensions is the embedding vector width.
	// Default: 64
	Dimensions int `yaml:"dimensions"`
}

// QueueConfig contains deferred job queue configuration.
type QueueConfig struct {
	// MaxPending bounds the pending backlog; enqueue beyond it reports the
	// queue as full and the caller receives an unavailable outcome.
	// Default: 1000
	MaxPending int `yaml:"max_pending"`

	// DefaultMaxAttempts is the per-job retry budget before the job moves
	// to the dead-letter set.
	// Default: 3
	DefaultMaxAttempts int `yaml:"default_max_attempts"`

	// CompletedRetention is how long completed jobs stay queryable before
	// the janitor prunes them. Dead-letter jobs are never pruned.
	// Default: 1h
	CompletedRetention time.Duration `yaml:"completed_retention"`
}

// WorkersConfig contains worker pool configuration.
type WorkersConfig struct {
	// Concurrency is the number of worker goroutines draining the queue.
	// Default: 4
	Concurrency int `yaml:"concurrency"`

	// PollInterval is how long an idle worker sleeps when the queue is
	// empty.
	// Default: 250ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// Backoff is how long a worker waits after finding no available
	// credential. The job keeps its place in the queue.
	// Default: 1s
	Backoff time.Duration `yaml:"backoff"`

	// RequestTimeout bounds each worker's upstream call.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StopTimeout bounds graceful shutdown; workers still busy after it
	// are abandoned.
	// Default: 30s
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// HealthConfig contains health aggregation thresholds.
type HealthConfig struct {
	// CircuitCriticalFraction promotes overall health to critical when the
	// fraction of open circuits exceeds it. Range (0, 1].
	// Default: 0.5
	CircuitCriticalFraction float64 `yaml:"circuit_critical_fraction"`

	// DLQCriticalSize promotes overall health to critical when the
	// dead-letter set grows beyond it.
	// Default: 100
	DLQCriticalSize int `yaml:"dlq_critical_size"`

	// QueueDegradedRatio marks the queue check degraded when pending
	// backlog exceeds this fraction of capacity. Range (0, 1].
	// Default: 0.8
	QueueDegradedRatio float64 `yaml:"queue_degraded_ratio"`
}

// MetricsConfig contains metrics exposition configuration.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "ganymede"
	Subsystem string `yaml:"subsystem"`
}

// UsageConfig contains usage recording configuration.
type UsageConfig struct {
	// Enabled controls whether admissions are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// DBPath is the SQLite database file path when Backend is "sqlite".
	// Default: "data/usage.db"
	DBPath string `yaml:"db_path"`

	// Buffer is the async record channel size; records beyond it are
	// dropped and counted.
	// Default: 1000
	Buffer int `yaml:"buffer"`

	// RetentionDays is how long usage records are kept. 0 keeps them
	// forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`
}

// MaintenanceConfig contains background maintenance schedules. Schedules use
// cron syntax, including the @every form.
type MaintenanceConfig struct {
	// CacheSweepSchedule controls expired cache entry removal.
	// Default: "@every 1m"
	CacheSweepSchedule string `yaml:"cache_sweep_schedule"`

	// QueuePruneSchedule controls completed-job pruning.
	// Default: "@every 5m"
	QueuePruneSchedule string `yaml:"queue_prune_schedule"`

	// UsagePruneSchedule controls usage record retention enforcement.
	// Default: "0 3 * * *" (daily at 3 AM)
	UsagePruneSchedule string `yaml:"usage_prune_schedule"`
}
