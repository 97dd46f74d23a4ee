// Package config holds harness configuration, merged from an optional yaml
// file, FITSTRESS_* environment variables, and command-line flags (highest
// precedence last).
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the full stress-run configuration.
type Config struct {
	// Addr is the host:port of the server under test.
	Addr string `yaml:"addr"`

	// WorkoutsPath is the template workout CSV; CredentialsPath the
	// credentials CSV written by setup-users.
	WorkoutsPath    string `yaml:"workouts_path"`
	CredentialsPath string `yaml:"credentials_path"`

	Threads   int  `yaml:"threads"`
	BatchSize int  `yaml:"batch_size"`
	ReadOnly  bool `yaml:"read_only"`

	// MetricsPort serves prometheus exposition when non-zero.
	MetricsPort int `yaml:"metrics_port"`

	// MaxJobsPerSec caps dispatch when non-zero.
	MaxJobsPerSec float64 `yaml:"max_jobs_per_sec"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Addr:      "127.0.0.1:8080",
		Threads:   runtime.NumCPU(),
		BatchSize: 32,
		LogLevel:  "info",
	}
}

// ApplyDefaults fills zero-valued fields from Default.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Threads == 0 {
		c.Threads = d.Threads
	}
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the configuration before any goroutine starts.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if c.WorkoutsPath == "" {
		return fmt.Errorf("config: workouts path is required")
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("config: credentials path is required")
	}
	if c.Threads <= 0 {
		return fmt.Errorf("config: threads must be positive, got %d", c.Threads)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("config: metrics port %d out of range", c.MetricsPort)
	}
	if c.MaxJobsPerSec < 0 {
		return fmt.Errorf("config: max jobs/sec must be non-negative, got %v", c.MaxJobsPerSec)
	}
	return nil
}

// LoadFile reads a yaml config file into cfg.
func LoadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
