package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 90 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Logging defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
	DefaultLoggingOutput = "stderr"

	// Upstream defaults
	DefaultUpstreamBaseURL    = "https://api.anthropic.com"
	DefaultUpstreamAPIVersion = "2023-06-01"
	DefaultUpstreamModel      = "claude-3-5-sonnet-20241022"
	DefaultUpstreamMaxTokens  = 1024
	DefaultUpstreamTimeout    = 60 * time.Second
	DefaultMaxIdleConns       = 100
	DefaultMaxConnsPerHost    = 50

	// Pool defaults
	DefaultFailureThreshold  = 5
	DefaultCooldown          = 30 * time.Second
	DefaultCooldownMax       = 10 * time.Minute
	DefaultWarningThreshold  = 0.8
	DefaultCriticalThreshold = 0.95
	DefaultAlertHistory      = 100

	// Cache defaults
	DefaultCacheEnabled      = true
	DefaultCacheMaxEntries   = 1000
	DefaultCacheTTL          = time.Hour
	DefaultSemanticEnabled   = true
	DefaultSemanticThreshold = 0.92
	DefaultSemanticWindow    = 256
	DefaultSemanticDims      = 64

	// Queue defaults
	DefaultQueueMaxPending    = 1000
	DefaultQueueMaxAttempts   = 3
	DefaultCompletedRetention = time.Hour

	// Worker defaults
	DefaultWorkerConcurrency    = 4
	DefaultWorkerPollInterval   = 250 * time.Millisecond
	DefaultWorkerBackoff        = time.Second
	DefaultWorkerRequestTimeout = 60 * time.Second
	DefaultWorkerStopTimeout    = 30 * time.Second

	// Health defaults
	DefaultCircuitCriticalFraction = 0.5
	DefaultDLQCriticalSize         = 100
	DefaultQueueDegradedRatio      = 0.8

	// Metrics defaults
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "mercator"
	DefaultMetricsSubsystem = "ganymede"

	// Usage defaults
	DefaultUsageEnabled       = true
	DefaultUsageBackend       = "sqlite"
	DefaultUsageDBPath        = "data/usage.db"
	DefaultUsageBuffer        = 1000
	DefaultUsageRetentionDays = 30

	// Maintenance defaults
	DefaultCacheSweepSchedule = "@every 1m"
	DefaultQueuePruneSchedule = "@every 5m"
	DefaultUsagePruneSchedule = "0 3 * * *"
)

// DefaultConfig returns a configuration populated with every default value
// and a single placeholder credential. The result passes Validate and is the
// baseline for the validate command's --print-defaults output.
func DefaultConfig() *Config {
	cfg := &Config{
		Credentials: []CredentialConfig{
			{ID: "primary", KeyEnv: "GANYMEDE_UPSTREAM_KEY", RPMLimit: 60, DailyLimit: 10000},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	applyCORSDefaults(&cfg.Server.CORS)

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLoggingOutput
	}

	// Upstream defaults
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.APIVersion == "" {
		cfg.Upstream.APIVersion = DefaultUpstreamAPIVersion
	}
	if cfg.Upstream.DefaultModel == "" {
		cfg.Upstream.DefaultModel = DefaultUpstreamModel
	}
	if cfg.Upstream.MaxTokens == 0 {
		cfg.Upstream.MaxTokens = DefaultUpstreamMaxTokens
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.Upstream.MaxConnsPerHost == 0 {
		cfg.Upstream.MaxConnsPerHost = DefaultMaxConnsPerHost
	}

	// Pool defaults
	if cfg.Pool.FailureThreshold == 0 {
		cfg.Pool.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Pool.Cooldown == 0 {
		cfg.Pool.Cooldown = DefaultCooldown
	}
	if cfg.Pool.CooldownMax == 0 {
		cfg.Pool.CooldownMax = DefaultCooldownMax
	}
	if cfg.Pool.WarningThreshold == 0 {
		cfg.Pool.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.Pool.CriticalThreshold == 0 {
		cfg.Pool.CriticalThreshold = DefaultCriticalThreshold
	}
	if cfg.Pool.AlertHistory == 0 {
		cfg.Pool.AlertHistory = DefaultAlertHistory
	}

	applyCacheDefaults(&cfg.Cache)

	// Queue defaults
	if cfg.Queue.MaxPending == 0 {
		cfg.Queue.MaxPending = DefaultQueueMaxPending
	}
	if cfg.Queue.DefaultMaxAttempts == 0 {
		cfg.Queue.DefaultMaxAttempts = DefaultQueueMaxAttempts
	}
	if cfg.Queue.CompletedRetention == 0 {
		cfg.Queue.CompletedRetention = DefaultCompletedRetention
	}

	// Worker defaults
	if cfg.Workers.Concurrency == 0 {
		cfg.Workers.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Workers.PollInterval == 0 {
		cfg.Workers.PollInterval = DefaultWorkerPollInterval
	}
	if cfg.Workers.Backoff == 0 {
		cfg.Workers.Backoff = DefaultWorkerBackoff
	}
	if cfg.Workers.RequestTimeout == 0 {
		cfg.Workers.RequestTimeout = DefaultWorkerRequestTimeout
	}
	if cfg.Workers.StopTimeout == 0 {
		cfg.Workers.StopTimeout = DefaultWorkerStopTimeout
	}

	// Health defaults
	if cfg.Health.CircuitCriticalFraction == 0 {
		cfg.Health.CircuitCriticalFraction = DefaultCircuitCriticalFraction
	}
	if cfg.Health.DLQCriticalSize == 0 {
		cfg.Health.DLQCriticalSize = DefaultDLQCriticalSize
	}
	if cfg.Health.QueueDegradedRatio == 0 {
		cfg.Health.QueueDegradedRatio = DefaultQueueDegradedRatio
	}

	// Metrics defaults. Enabled defaults to true when the section is
	// untouched; YAML cannot distinguish an absent boolean from false.
	if !cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" && cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Enabled = DefaultMetricsEnabled
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	// Usage defaults
	if !cfg.Usage.Enabled {
		hasAnyConfig := cfg.Usage.Backend != "" ||
			cfg.Usage.DBPath != "" ||
			cfg.Usage.Buffer > 0 ||
			cfg.Usage.RetentionDays > 0
		if !hasAnyConfig {
			cfg.Usage.Enabled = DefaultUsageEnabled
		}
	}
	if cfg.Usage.Backend == "" {
		cfg.Usage.Backend = DefaultUsageBackend
	}
	if cfg.Usage.DBPath == "" {
		cfg.Usage.DBPath = DefaultUsageDBPath
	}
	if cfg.Usage.Buffer == 0 {
		cfg.Usage.Buffer = DefaultUsageBuffer
	}
	if cfg.Usage.RetentionDays == 0 {
		cfg.Usage.RetentionDays = DefaultUsageRetentionDays
	}

	// Maintenance defaults
	if cfg.Maintenance.CacheSweepSchedule == "" {
		cfg.Maintenance.CacheSweepSchedule = DefaultCacheSweepSchedule
	}
	if cfg.Maintenance.QueuePruneSchedule == "" {
		cfg.Maintenance.QueuePruneSchedule = DefaultQueuePruneSchedule
	}
	if cfg.Maintenance.UsagePruneSchedule == "" {
		cfg.Maintenance.UsagePruneSchedule = DefaultUsagePruneSchedule
	}
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	// Enabled defaults to true when the section is untouched. If any CORS
	// field is set the operator configured the section deliberately and the
	// flag is left alone.
	if !cors.Enabled {
		hasAnyConfig := len(cors.AllowedOrigins) > 0 ||
			len(cors.AllowedMethods) > 0 ||
			len(cors.AllowedHeaders) > 0 ||
			cors.MaxAge > 0
		if !hasAnyConfig {
			cors.Enabled = DefaultCORSEnabled
		}
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "X-Request-ID", "X-Admin-Key"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// applyCacheDefaults applies default values to cache configuration.
func applyCacheDefaults(cache *CacheConfig) {
	if !cache.Enabled {
		hasAnyConfig := cache.MaxEntries > 0 ||
			cache.TTL > 0 ||
			cache.PersistPath != ""
		if !hasAnyConfig {
			cache.Enabled = DefaultCacheEnabled
		}
	}
	if cache.MaxEntries == 0 {
		cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cache.TTL == 0 {
		cache.TTL = DefaultCacheTTL
	}

	if !cache.Semantic.Enabled {
		hasAnyConfig := cache.Semantic.Threshold > 0 ||
			cache.Semantic.Window > 0 ||
			cache.Semantic.Dimensions > 0
		if !hasAnyConfig {
			cache.Semantic.Enabled = DefaultSemanticEnabled
		}
	}
	if cache.Semantic.Threshold == 0 {
		cache.Semantic.Threshold = DefaultSemanticThreshold
	}
	if cache.Semantic.Window == 0 {
		cache.Semantic.Window = DefaultSemanticWindow
	}
	if cache.Semantic.Dimensions == 0 {
		cache.Semantic.Dimensions = DefaultSemanticDims
	}
}
