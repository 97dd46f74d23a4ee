package config

import (
	"os"
	"strconv"
)

// LoadFromEnv overrides cfg from FITSTRESS_* environment variables.
func LoadFromEnv(cfg *Config) {
	if addr := os.Getenv("FITSTRESS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if path := os.Getenv("FITSTRESS_WORKOUTS"); path != "" {
		cfg.WorkoutsPath = path
	}
	if path := os.Getenv("FITSTRESS_CREDENTIALS"); path != "" {
		cfg.CredentialsPath = path
	}
	if threads := os.Getenv("FITSTRESS_THREADS"); threads != "" {
		if n, err := strconv.Atoi(threads); err == nil {
			cfg.Threads = n
		}
	}
	if batch := os.Getenv("FITSTRESS_BATCH_SIZE"); batch != "" {
		if n, err := strconv.Atoi(batch); err == nil {
			cfg.BatchSize = n
		}
	}
	if port := os.Getenv("FITSTRESS_METRICS_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.MetricsPort = n
		}
	}
	if level := os.Getenv("FITSTRESS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}
