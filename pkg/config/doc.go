// Package config provides configuration management for Mercator Ganymede.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD.
// For example:
//
//   - GANYMEDE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - GANYMEDE_LOGGING_LEVEL overrides logging.level
//   - GANYMEDE_CACHE_ENABLED overrides cache.enabled
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Credential Secrets
//
// Credential entries should reference secrets through key_env so that
// configuration files never hold raw keys:
//
//	credentials:
//	  - id: "primary"
//	    key_env: "UPSTREAM_KEY_PRIMARY"
//	    rpm_limit: 60
//	    daily_limit: 10000
//
// CredentialConfig.ResolveKey resolves the secret at startup.
//
// # Hot Reload
//
// Watcher observes the configuration file and re-applies the safe subset of
// changes (credential limits, disabled flags, alert thresholds) to the
// running process. Invalid edits are logged and ignored; the previous
// configuration stays in effect.
//
// # Validation
//
// All configuration is validated automatically during loading. Validation
// failures at startup are fatal: the credential pool must never initialize
// from a malformed credential set. Validation errors include field paths and
// helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - credentials[0].rpm_limit: rpm limit must be positive
//	  - pool.critical_threshold: critical threshold must be >= warning threshold
package config
