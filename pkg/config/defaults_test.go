package config

import (
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Pool.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("expected failure threshold %d, got %d", DefaultFailureThreshold, cfg.Pool.FailureThreshold)
	}
	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("expected cache ttl %v, got %v", DefaultCacheTTL, cfg.Cache.TTL)
	}
	if !cfg.Cache.Enabled {
		t.Error("expected cache to be enabled by default")
	}
	if !cfg.Cache.Semantic.Enabled {
		t.Error("expected semantic cache to be enabled by default")
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to be enabled by default")
	}
	if cfg.Workers.Concurrency != DefaultWorkerConcurrency {
		t.Errorf("expected concurrency %d, got %d", DefaultWorkerConcurrency, cfg.Workers.Concurrency)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	before := *cfg

	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != before.Server.ListenAddress {
		t.Error("listen address changed on second ApplyDefaults")
	}
	if cfg.Server.ReadTimeout != before.Server.ReadTimeout {
		t.Error("read timeout changed on second ApplyDefaults")
	}
	if cfg.Pool != before.Pool {
		t.Error("pool config changed on second ApplyDefaults")
	}
	if cfg.Queue != before.Queue {
		t.Error("queue config changed on second ApplyDefaults")
	}
	if cfg.Workers != before.Workers {
		t.Error("workers config changed on second ApplyDefaults")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.ListenAddress = "10.0.0.1:7777"
	cfg.Pool.Cooldown = 5 * time.Second
	cfg.Pool.CooldownMax = 20 * time.Second
	cfg.Queue.DefaultMaxAttempts = 7

	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "10.0.0.1:7777" {
		t.Errorf("explicit listen address overwritten: %q", cfg.Server.ListenAddress)
	}
	if cfg.Pool.Cooldown != 5*time.Second {
		t.Errorf("explicit cooldown overwritten: %v", cfg.Pool.Cooldown)
	}
	if cfg.Pool.CooldownMax != 20*time.Second {
		t.Errorf("explicit cooldown max overwritten: %v", cfg.Pool.CooldownMax)
	}
	if cfg.Queue.DefaultMaxAttempts != 7 {
		t.Errorf("explicit max attempts overwritten: %d", cfg.Queue.DefaultMaxAttempts)
	}
}

func TestApplyDefaults_ExplicitDisableRespected(t *testing.T) {
	// A section with any explicit field keeps Enabled=false; an untouched
	// section gets the enabled default.
	cfg := &Config{}
	cfg.Cache.Enabled = false
	cfg.Cache.MaxEntries = 50

	ApplyDefaults(cfg)

	if cfg.Cache.Enabled {
		t.Error("explicitly configured cache section must stay disabled")
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("explicit max entries overwritten: %d", cfg.Cache.MaxEntries)
	}

	untouched := &Config{}
	ApplyDefaults(untouched)
	if !untouched.Cache.Enabled {
		t.Error("untouched cache section must default to enabled")
	}
}
