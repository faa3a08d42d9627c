package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Nil(t, cfg.Analysis.TimeLimit)
	assert.Equal(t, 10.0, cfg.Analysis.GridInterval)
	assert.Equal(t, 1, cfg.Workers())
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FUZZRATIO_LIMIT", "3600")
	t.Setenv("FUZZRATIO_INTERVAL", "2.5")
	t.Setenv("FUZZRATIO_PARALLEL", "0")
	t.Setenv("STORAGE_PATH", "/tmp/runs")
	t.Setenv("COMPRESSION_LEVEL", "4")
	t.Setenv("ENABLE_WAL", "false")

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Analysis.TimeLimit)
	assert.Equal(t, 3600.0, *cfg.Analysis.TimeLimit)
	assert.Equal(t, 2.5, cfg.Analysis.GridInterval)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers())
	assert.True(t, cfg.Storage.Enabled)

	sc := cfg.ToStorageConfig()
	assert.Equal(t, "/tmp/runs", sc.Path)
	assert.Equal(t, 4, sc.CompressionLevel)
	assert.False(t, sc.EnableWAL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuzzratio.yaml")
	content := `
analysis:
  time_limit: 600
  parallelism: 4
server:
  timeout: 5s
labels:
  "42": Codegen
  "2": Tokens
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Analysis.TimeLimit)
	assert.Equal(t, 600.0, *cfg.Analysis.TimeLimit)
	assert.Equal(t, 4, cfg.Workers())
	// untouched fields keep their defaults
	assert.Equal(t, 10.0, cfg.Analysis.GridInterval)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)

	opts := cfg.AnalysisOptions()
	assert.Equal(t, 600.0, *opts.TimeLimit)
	assert.Equal(t, "Codegen", opts.Labels.Label("42"))
	assert.Equal(t, "Tokens", opts.Labels.Label("2"))
	assert.Equal(t, "Valid", opts.Labels.Label("23"))
}

func TestLoadFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis: [1, 2"), 0o644))
	assert.Error(t, cfg.LoadFile(path))
}

func TestValidate(t *testing.T) {
	negative := -1.0
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Analysis.GridInterval = 0 }},
		{"negative limit", func(c *Config) { c.Analysis.TimeLimit = &negative }},
		{"negative parallelism", func(c *Config) { c.Analysis.Parallelism = -2 }},
		{"compression too low", func(c *Config) { c.Storage.CompressionLevel = 0 }},
		{"compression too high", func(c *Config) { c.Storage.CompressionLevel = 5 }},
		{"enabled storage without path", func(c *Config) { c.Storage.Enabled = true; c.Storage.Path = "" }},
		{"no listen address", func(c *Config) { c.Server.ListenAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
