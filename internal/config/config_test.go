package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/memory"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	if p != memory.DefaultParams() {
		t.Errorf("Params = %+v, want defaults", p)
	}
	if cfg.ListenAddr() != "127.0.0.1:37778" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.toml", `
[server]
port = 9000

[memory]
gamma = 0.01
bias = "important"
decay_interval = "30m"

[recall]
similarity = "tfidf"
weights = [0.4, 0.3, 0.3]
recency_half_life = "24h"

[snapshot]
keep = 3
compress = true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("bind = %q, want default", cfg.Server.Bind)
	}
	if cfg.Memory.DecayInterval != 30*time.Minute {
		t.Errorf("decay_interval = %v, want 30m", cfg.Memory.DecayInterval)
	}
	if cfg.Recall.RecencyHalfLife != 24*time.Hour {
		t.Errorf("recency_half_life = %v, want 24h", cfg.Recall.RecencyHalfLife)
	}
	if cfg.Recall.Similarity != "tfidf" || !cfg.Snapshot.Compress || cfg.Snapshot.Keep != 3 {
		t.Errorf("recall/snapshot = %+v %+v", cfg.Recall, cfg.Snapshot)
	}

	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	if p.Gamma != 0.01 {
		t.Errorf("gamma = %v, want 0.01", p.Gamma)
	}
	if want := 0.12 * 0.7; math.Abs(p.Beta-want) > 1e-12 {
		t.Errorf("beta = %v, want important bias %v", p.Beta, want)
	}

	w, err := cfg.Weights()
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w != engine.SourceWeights {
		t.Errorf("weights = %v, want %v", w, engine.SourceWeights)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.toml", "[memory]\ngamma = 0.01\n")
	t.Setenv("MNEMO_MEMORY_GAMMA", "0.2")
	t.Setenv("MNEMO_SERVER_PORT", "4242")
	t.Setenv("MNEMO_LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.Gamma != 0.2 {
		t.Errorf("gamma = %v, want env value 0.2", cfg.Memory.Gamma)
	}
	if cfg.Server.Port != 4242 {
		t.Errorf("port = %d, want 4242", cfg.Server.Port)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadMissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no config file: %v", err)
	}
	if cfg.Snapshot.Keep != Default().Snapshot.Keep {
		t.Errorf("keep = %d, want default", cfg.Snapshot.Keep)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative gamma", func(c *Config) { c.Memory.Gamma = -1 }},
		{"threshold above one", func(c *Config) { c.Memory.EvictionThreshold = 1.5 }},
		{"unknown bias", func(c *Config) { c.Memory.Bias = "sentimental" }},
		{"unknown similarity", func(c *Config) { c.Recall.Similarity = "vibes" }},
		{"two weights", func(c *Config) { c.Recall.Weights = []float64{1, 2} }},
		{"negative weight", func(c *Config) { c.Recall.Weights = []float64{1, -1, 1} }},
		{"min relevance", func(c *Config) { c.Recall.MinRelevance = 2 }},
		{"negative keep", func(c *Config) { c.Snapshot.Keep = -1 }},
		{"short key", func(c *Config) { c.Snapshot.Key = "abcd" }},
		{"non-hex key", func(c *Config) { c.Snapshot.Key = strings.Repeat("zz", 32) }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestWeightsSingleChannel(t *testing.T) {
	cfg := Default()
	cfg.Recall.Weights = []float64{2}
	w, err := cfg.Weights()
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w != (engine.Weights{2, 2, 2}) {
		t.Errorf("weights = %v", w)
	}

	cfg.Recall.Weights = nil
	if w, _ := cfg.Weights(); w != (engine.Weights{}) {
		t.Errorf("empty weights = %v, want zero (uniform)", w)
	}
}

func TestSnapshotKey(t *testing.T) {
	cfg := Default()
	if key, err := cfg.SnapshotKey(); err != nil || key != nil {
		t.Fatalf("no key: got %v, %v", key, err)
	}
	cfg.Snapshot.Key = strings.Repeat("ab", 32)
	key, err := cfg.SnapshotKey()
	if err != nil {
		t.Fatalf("SnapshotKey: %v", err)
	}
	if len(key) != 32 || key[0] != 0xab {
		t.Errorf("key = %x", key)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "MNEMO_TEST_DOTENV=from-file\n")
	t.Setenv("MNEMO_TEST_DOTENV", "")
	os.Unsetenv("MNEMO_TEST_DOTENV")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("MNEMO_TEST_DOTENV"); got != "from-file" {
		t.Errorf("MNEMO_TEST_DOTENV = %q, want from-file", got)
	}

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
