package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a fully-defaulted configuration that passes Validate.
// Tests mutate a copy to produce a single violation.
func validConfig() *Config {
	return DefaultConfig()
}

func TestValidate_InvalidFields(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "empty listen address",
			mutate:    func(c *Config) { c.Server.ListenAddress = "" },
			wantField: "server.listen_address",
		},
		{
			name:      "bad logging level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "bad logging format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantField: "logging.format",
		},
		{
			name:      "missing upstream URL",
			mutate:    func(c *Config) { c.Upstream.BaseURL = "" },
			wantField: "upstream.base_url",
		},
		{
			name:      "upstream URL without scheme",
			mutate:    func(c *Config) { c.Upstream.BaseURL = "api.anthropic.com" },
			wantField: "upstream.base_url",
		},
		{
			name:      "no credentials",
			mutate:    func(c *Config) { c.Credentials = nil },
			wantField: "credentials",
		},
		{
			name: "credential without id",
			mutate: func(c *Config) {
				c.Credentials[0].ID = ""
			},
			wantField: "credentials[0].id",
		},
		{
			name: "duplicate credential ids",
			mutate: func(c *Config) {
				c.Credentials = append(c.Credentials, c.Credentials[0])
			},
			wantField: "credentials[1].id",
		},
		{
			name: "credential without key source",
			mutate: func(c *Config) {
				c.Credentials[0].Key = ""
				c.Credentials[0].KeyEnv = ""
			},
			wantField: "credentials[0]",
		},
		{
			name: "non-positive rpm limit",
			mutate: func(c *Config) {
				c.Credentials[0].RPMLimit = 0
			},
			wantField: "credentials[0].rpm_limit",
		},
		{
			name: "negative daily limit",
			mutate: func(c *Config) {
				c.Credentials[0].DailyLimit = -1
			},
			wantField: "credentials[0].daily_limit",
		},
		{
			name:      "zero failure threshold",
			mutate:    func(c *Config) { c.Pool.FailureThreshold = 0 },
			wantField: "pool.failure_threshold",
		},
		{
			name:      "warning threshold above one",
			mutate:    func(c *Config) { c.Pool.WarningThreshold = 1.5 },
			wantField: "pool.warning_threshold",
		},
		{
			name: "critical below warning",
			mutate: func(c *Config) {
				c.Pool.WarningThreshold = 0.9
				c.Pool.CriticalThreshold = 0.5
			},
			wantField: "pool.critical_threshold",
		},
		{
			name: "cooldown max below cooldown",
			mutate: func(c *Config) {
				c.Pool.Cooldown = time.Minute
				c.Pool.CooldownMax = time.Second
			},
			wantField: "pool.cooldown_max",
		},
		{
			name:      "negative cache entries",
			mutate:    func(c *Config) { c.Cache.MaxEntries = -5 },
			wantField: "cache.max_entries",
		},
		{
			name:      "semantic threshold zero",
			mutate:    func(c *Config) { c.Cache.Semantic.Threshold = 0 },
			wantField: "cache.semantic.threshold",
		},
		{
			name:      "zero queue capacity",
			mutate:    func(c *Config) { c.Queue.MaxPending = 0 },
			wantField: "queue.max_pending",
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Queue.DefaultMaxAttempts = 0 },
			wantField: "queue.default_max_attempts",
		},
		{
			name:      "zero worker concurrency",
			mutate:    func(c *Config) { c.Workers.Concurrency = 0 },
			wantField: "workers.concurrency",
		},
		{
			name:      "circuit fraction above one",
			mutate:    func(c *Config) { c.Health.CircuitCriticalFraction = 2 },
			wantField: "health.circuit_critical_fraction",
		},
		{
			name:      "unknown usage backend",
			mutate:    func(c *Config) { c.Usage.Backend = "postgres" },
			wantField: "usage.backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}

			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error on field %q, got %v", tt.wantField, verr.Errors)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddress = ""
	cfg.Logging.Level = "bogus"
	cfg.Credentials = nil

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) < 3 {
		t.Errorf("expected at least 3 field errors, got %d: %v", len(verr.Errors), verr.Errors)
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "pool.cooldown", Message: "must be positive"},
		{Field: "queue.max_pending", Message: "must be positive"},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "pool.cooldown") {
		t.Errorf("message should name the field: %q", msg)
	}
	if !strings.Contains(msg, "must be positive") {
		t.Errorf("message should carry the reason: %q", msg)
	}
}

func TestFieldError_Message(t *testing.T) {
	err := FieldError{Field: "cache.ttl", Message: "must not be negative"}
	if got := err.Error(); !strings.Contains(got, "cache.ttl") || !strings.Contains(got, "must not be negative") {
		t.Errorf("unexpected field error message: %q", got)
	}
}
