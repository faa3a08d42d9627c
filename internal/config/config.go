package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vjranagit/fuzzratio/pkg/analysis"
	"github.com/vjranagit/fuzzratio/pkg/report"
	"github.com/vjranagit/fuzzratio/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	// Labels maps category keys to display names, on top of the built-in table
	Labels map[string]string `yaml:"labels"`
}

// AnalysisConfig controls how runs are processed
type AnalysisConfig struct {
	// TimeLimit stops reading a run past this many seconds; nil reads it all
	TimeLimit    *float64 `yaml:"time_limit"`
	GridInterval float64  `yaml:"grid_interval"`
	// Parallelism is the number of runs processed at once; 0 uses every CPU
	Parallelism int `yaml:"parallelism"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	// Enabled writes every run's series to the store
	Enabled          bool   `yaml:"enabled"`
	Path             string `yaml:"path"`
	CompressionLevel int    `yaml:"compression_level"`
	EnableWAL        bool   `yaml:"enable_wal"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the built-in defaults overlaid with environment
// variables
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			TimeLimit:    getEnvFloatPtr("FUZZRATIO_LIMIT"),
			GridInterval: getEnvFloat("FUZZRATIO_INTERVAL", analysis.DefaultGridInterval),
			Parallelism:  getEnvInt("FUZZRATIO_PARALLEL", 1),
		},
		Storage: StorageConfig{
			Enabled:          getEnv("STORAGE_PATH", "") != "",
			Path:             getEnv("STORAGE_PATH", "./data"),
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			EnableWAL:        getEnvBool("ENABLE_WAL", true),
		},
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":9090"),
			Timeout:    30 * time.Second,
		},
	}
}

// LoadFile overlays the YAML file at path onto c. Fields missing from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Workers resolves the configured parallelism
func (c *Config) Workers() int {
	if c.Analysis.Parallelism == 0 {
		return runtime.NumCPU()
	}
	return c.Analysis.Parallelism
}

// AnalysisOptions converts to analysis.Options
func (c *Config) AnalysisOptions() analysis.Options {
	opts := analysis.DefaultOptions()
	opts.TimeLimit = c.Analysis.TimeLimit
	opts.GridInterval = c.Analysis.GridInterval
	opts.Labels = report.DefaultLabels().Merge(c.Labels)
	return opts
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		CompressionLevel: c.Storage.CompressionLevel,
		EnableWAL:        c.Storage.EnableWAL,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Analysis.GridInterval <= 0 {
		return fmt.Errorf("grid interval must be positive, got %g", c.Analysis.GridInterval)
	}

	if c.Analysis.TimeLimit != nil && *c.Analysis.TimeLimit < 0 {
		return fmt.Errorf("time limit must not be negative, got %g", *c.Analysis.TimeLimit)
	}

	if c.Analysis.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Analysis.Parallelism)
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := getEnvFloatPtr(key); v != nil {
		return *v
	}
	return defaultValue
}

func getEnvFloatPtr(key string) *float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return &f
		}
	}
	return nil
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
