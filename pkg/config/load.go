package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention GANYMEDE_SECTION_FIELD (e.g., GANYMEDE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// ResolveKey returns the credential secret, preferring the environment
// variable named by KeyEnv over the inline Key.
func (c CredentialConfig) ResolveKey() string {
	if c.KeyEnv != "" {
		if val := os.Getenv(c.KeyEnv); val != "" {
			return val
		}
	}
	return c.Key
}

// ResolveAdminKey returns the admin key, preferring the environment variable
// named by AdminKeyEnv over the inline AdminKey. Empty means the admin
// surface is unguarded.
func (c ServerConfig) ResolveAdminKey() string {
	if c.AdminKeyEnv != "" {
		if val := os.Getenv(c.AdminKeyEnv); val != "" {
			return val
		}
	}
	return c.AdminKey
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format GANYMEDE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("GANYMEDE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("GANYMEDE_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("GANYMEDE_SERVER_ADMIN_KEY"); val != "" {
		cfg.Server.AdminKey = val
	}

	// Logging overrides
	if val := os.Getenv("GANYMEDE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("GANYMEDE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("GANYMEDE_LOGGING_OUTPUT"); val != "" {
		cfg.Logging.Output = val
	}

	// Upstream overrides
	if val := os.Getenv("GANYMEDE_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("GANYMEDE_UPSTREAM_API_VERSION"); val != "" {
		cfg.Upstream.APIVersion = val
	}
	if val := os.Getenv("GANYMEDE_UPSTREAM_DEFAULT_MODEL"); val != "" {
		cfg.Upstream.DefaultModel = val
	}
	if val := os.Getenv("GANYMEDE_UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Pool overrides
	if val := os.Getenv("GANYMEDE_POOL_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Pool.FailureThreshold = i
		}
	}
	if val := os.Getenv("GANYMEDE_POOL_COOLDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pool.Cooldown = d
		}
	}
	if val := os.Getenv("GANYMEDE_POOL_COOLDOWN_MAX"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pool.CooldownMax = d
		}
	}

	// Cache overrides
	if val := os.Getenv("GANYMEDE_CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_CACHE_MAX_ENTRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.MaxEntries = i
		}
	}
	if val := os.Getenv("GANYMEDE_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if val := os.Getenv("GANYMEDE_CACHE_SEMANTIC_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Semantic.Enabled = b
		}
	}

	// Queue overrides
	if val := os.Getenv("GANYMEDE_QUEUE_MAX_PENDING"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Queue.MaxPending = i
		}
	}
	if val := os.Getenv("GANYMEDE_QUEUE_DEFAULT_MAX_ATTEMPTS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Queue.DefaultMaxAttempts = i
		}
	}

	// Worker overrides
	if val := os.Getenv("GANYMEDE_WORKERS_CONCURRENCY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Workers.Concurrency = i
		}
	}
	if val := os.Getenv("GANYMEDE_WORKERS_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Workers.RequestTimeout = d
		}
	}

	// Metrics overrides
	if val := os.Getenv("GANYMEDE_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}

	// Usage overrides
	if val := os.Getenv("GANYMEDE_USAGE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Usage.Enabled = b
		}
	}
	if val := os.Getenv("GANYMEDE_USAGE_BACKEND"); val != "" {
		cfg.Usage.Backend = val
	}
	if val := os.Getenv("GANYMEDE_USAGE_DB_PATH"); val != "" {
		cfg.Usage.DBPath = val
	}
}
