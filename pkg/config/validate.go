package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// A validation failure at startup is fatal: the pool must never initialize
// from a malformed credential set.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateCredentials(cfg.Credentials)...)
	errs = append(errs, validatePool(&cfg.Pool)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateWorkers(&cfg.Workers)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	return errs
}

// validateLogging validates logging configuration.
func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (options: debug, info, warn, error)", cfg.Level),
		})
	}
	switch cfg.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (options: json, text)", cfg.Format),
		})
	}

	return errs
}

// validateUpstream validates upstream provider configuration.
func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: "base URL is required",
		})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "upstream.base_url",
			Message: fmt.Sprintf("invalid URL %q (scheme and host required)", cfg.BaseURL),
		})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.timeout",
			Message: "timeout must be positive",
		})
	}
	if cfg.MaxTokens <= 0 {
		errs = append(errs, FieldError{
			Field:   "upstream.max_tokens",
			Message: "max tokens must be positive",
		})
	}

	return errs
}

// validateCredentials validates the credential set. The pool cannot start
// without at least one well-formed credential.
func validateCredentials(creds []CredentialConfig) []FieldError {
	var errs []FieldError

	if len(creds) == 0 {
		errs = append(errs, FieldError{
			Field:   "credentials",
			Message: "at least one credential must be configured",
		})
		return errs
	}

	seen := make(map[string]bool, len(creds))
	for i, cred := range creds {
		prefix := fmt.Sprintf("credentials[%d]", i)

		if cred.ID == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".id",
				Message: "credential id is required",
			})
		} else if seen[cred.ID] {
			errs = append(errs, FieldError{
				Field:   prefix + ".id",
				Message: fmt.Sprintf("duplicate credential id %q", cred.ID),
			})
		}
		seen[cred.ID] = true

		// Secret resolution happens at pool construction; validation only
		// requires that a source is named.
		if cred.Key == "" && cred.KeyEnv == "" {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: "either key or key_env is required",
			})
		}
		if cred.RPMLimit <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".rpm_limit",
				Message: "rpm limit must be positive",
			})
		}
		if cred.DailyLimit <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".daily_limit",
				Message: "daily limit must be positive",
			})
		}
	}

	return errs
}

// validatePool validates credential pool tuning.
func validatePool(cfg *PoolConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "pool.failure_threshold",
			Message: "failure threshold must be positive",
		})
	}
	if cfg.Cooldown <= 0 {
		errs = append(errs, FieldError{
			Field:   "pool.cooldown",
			Message: "cooldown must be positive",
		})
	}
	if cfg.CooldownMax < cfg.Cooldown {
		errs = append(errs, FieldError{
			Field:   "pool.cooldown_max",
			Message: "cooldown_max must be >= cooldown",
		})
	}
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "pool.warning_threshold",
			Message: "warning threshold must be in (0, 1]",
		})
	}
	if cfg.CriticalThreshold <= 0 || cfg.CriticalThreshold > 1 {
		errs = append(errs, FieldError{
			Field:   "pool.critical_threshold",
			Message: "critical threshold must be in (0, 1]",
		})
	} else if cfg.CriticalThreshold < cfg.WarningThreshold {
		errs = append(errs, FieldError{
			Field:   "pool.critical_threshold",
			Message: "critical threshold must be >= warning threshold",
		})
	}
	if cfg.AlertHistory <= 0 {
		errs = append(errs, FieldError{
			Field:   "pool.alert_history",
			Message: "alert history must be positive",
		})
	}

	return errs
}

// validateCache validates cache configuration.
func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxEntries <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.max_entries",
			Message: "max entries must be positive",
		})
	}
	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{
			Field:   "cache.ttl",
			Message: "ttl must be positive",
		})
	}
	if cfg.Semantic.Enabled {
		if cfg.Semantic.Threshold <= 0 || cfg.Semantic.Threshold > 1 {
			errs = append(errs, FieldError{
				Field:   "cache.semantic.threshold",
				Message: "similarity threshold must be in (0, 1]",
			})
		}
		if cfg.Semantic.Window <= 0 {
			errs = append(errs, FieldError{
				Field:   "cache.semantic.window",
				Message: "window must be positive",
			})
		}
		if cfg.Semantic.Dimensions <= 0 {
			errs = append(errs, FieldError{
				Field:   "cache.semantic.dimensions",
				Message: "dimensions must be positive",
			})
		}
	}

	return errs
}

// validateQueue validates job queue configuration.
func validateQueue(cfg *QueueConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxPending <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.max_pending",
			Message: "max pending must be positive",
		})
	}
	if cfg.DefaultMaxAttempts <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.default_max_attempts",
			Message: "default max attempts must be positive",
		})
	}

	return errs
}

// validateWorkers validates worker pool configuration.
func validateWorkers(cfg *WorkersConfig) []FieldError {
	var errs []FieldError

	if cfg.Concurrency <= 0 {
		errs = append(errs, FieldError{
			Field:   "workers.concurrency",
			Message: "concurrency must be positive",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "workers.poll_interval",
			Message: "poll interval must be positive",
		})
	}
	if cfg.Backoff <= 0 {
		errs = append(errs, FieldError{
			Field:   "workers.backoff",
			Message: "backoff must be positive",
		})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "workers.request_timeout",
			Message: "request timeout must be positive",
		})
	}

	return errs
}

// validateHealth validates health aggregation thresholds.
func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if cfg.CircuitCriticalFraction <= 0 || cfg.CircuitCriticalFraction > 1 {
		errs = append(errs, FieldError{
			Field:   "health.circuit_critical_fraction",
			Message: "circuit critical fraction must be in (0, 1]",
		})
	}
	if cfg.DLQCriticalSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "health.dlq_critical_size",
			Message: "dlq critical size must be positive",
		})
	}
	if cfg.QueueDegradedRatio <= 0 || cfg.QueueDegradedRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "health.queue_degraded_ratio",
			Message: "queue degraded ratio must be in (0, 1]",
		})
	}

	return errs
}

// validateUsage validates usage recording configuration.
func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("invalid backend %q (options: memory, sqlite)", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.DBPath == "" {
		errs = append(errs, FieldError{
			Field:   "usage.db_path",
			Message: "db path is required for the sqlite backend",
		})
	}
	if cfg.Buffer <= 0 {
		errs = append(errs, FieldError{
			Field:   "usage.buffer",
			Message: "buffer must be positive",
		})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "usage.retention_days",
			Message: "retention days must be non-negative",
		})
	}

	return errs
}
