package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := New()

	if cfg.Aggregation.MaxSources != 3 {
		t.Fatalf("max sources default: %d", cfg.Aggregation.MaxSources)
	}
	if cfg.Aggregation.PerSourceTimeout() != 30*time.Second {
		t.Fatalf("per-source timeout default: %s", cfg.Aggregation.PerSourceTimeout())
	}
	if cfg.Aggregation.RouterTimeout() != 45*time.Second {
		t.Fatalf("router timeout default: %s", cfg.Aggregation.RouterTimeout())
	}
	if cfg.Aggregation.FlightTTL() != 5*time.Minute {
		t.Fatalf("flight TTL default: %s", cfg.Aggregation.FlightTTL())
	}
	if cfg.Aggregation.WeatherTTL() != 15*time.Minute {
		t.Fatalf("weather TTL default: %s", cfg.Aggregation.WeatherTTL())
	}
	if cfg.Monitor.Interval() != 5*time.Minute {
		t.Fatalf("monitor interval default: %s", cfg.Monitor.Interval())
	}
	if cfg.Monitor.MaxPoliciesPerCheck != 50 || cfg.Monitor.DefaultDelayThresholdMinutes != 15 {
		t.Fatalf("monitor defaults: %#v", cfg.Monitor)
	}
	if cfg.Aggregation.MinAcceptableQualityScore != 0.3 {
		t.Fatalf("quality floor default: %f", cfg.Aggregation.MinAcceptableQualityScore)
	}
	if cfg.Chains.Primary != "PAYGO" {
		t.Fatalf("primary chain default: %s", cfg.Chains.Primary)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
aggregation:
  max_sources: 5
  cache_ttl_flight_seconds: 60
monitor:
  interval_ms: 60000
chains:
  primary: base
cache:
  backend: MEMORY
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Aggregation.MaxSources != 5 {
		t.Fatalf("override not applied: %d", cfg.Aggregation.MaxSources)
	}
	if cfg.Aggregation.FlightTTL() != time.Minute {
		t.Fatalf("flight TTL override: %s", cfg.Aggregation.FlightTTL())
	}
	// Untouched fields keep their defaults.
	if cfg.Aggregation.MaxConcurrentWeatherRequests != 3 {
		t.Fatalf("unrelated default lost: %d", cfg.Aggregation.MaxConcurrentWeatherRequests)
	}
	// Normalization uppercases the chain tag and lowercases the backend.
	if cfg.Chains.Primary != "BASE" || cfg.Cache.Backend != "memory" {
		t.Fatalf("normalization failed: %s %s", cfg.Chains.Primary, cfg.Cache.Backend)
	}
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Aggregation.MaxSources = 0 },
		func(c *Config) { c.Aggregation.PerSourceTimeoutMs = 0 },
		func(c *Config) { c.Aggregation.MinAcceptableQualityScore = 1.5 },
		func(c *Config) { c.Monitor.MaxPoliciesPerCheck = 0 },
		func(c *Config) { c.Cache.Backend = "memcached" },
		func(c *Config) { c.Cache.Backend = "redis" }, // no addr
	}
	for i, mutate := range cases {
		cfg := New()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d must fail validation", i)
		}
	}
}

func TestLoadFileMissingIsNotFatal(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.Aggregation.MaxSources != 3 {
		t.Fatalf("defaults expected, got %#v", cfg.Aggregation)
	}
}
