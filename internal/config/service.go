package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ServiceConfig holds process-wide settings for the reconciler.
type ServiceConfig struct {
	// GitHubToken authenticates API calls.
	// Env: FLAKEWATCH_GITHUB_TOKEN (falls back to GITHUB_TOKEN)
	GitHubToken string

	// GitHubURL overrides the API base URL, e.g. for GitHub Enterprise.
	// Env: FLAKEWATCH_GITHUB_URL
	GitHubURL string

	// LockDB is a SQLite file shared by all instances for issue locks.
	// Default: DefaultLockDB()
	// Env: FLAKEWATCH_LOCK_DB
	LockDB string

	// LockLease is how long a held lock survives a crashed holder.
	// Default: 20 seconds, Range: 1s-10m
	// Env: FLAKEWATCH_LOCK_LEASE_SECS
	LockLease time.Duration

	// LockTimeout bounds lock acquisition.
	// Default: 2 minutes, Range: 1s-30m
	// Env: FLAKEWATCH_LOCK_TIMEOUT_SECS
	LockTimeout time.Duration

	// Concurrency is how many packages are processed in parallel.
	// Default: 4, Range: 1-64
	// Env: FLAKEWATCH_CONCURRENCY
	Concurrency int

	// RateLimit is the maximum GitHub requests per second. 0 disables it.
	// Default: 10
	// Env: FLAKEWATCH_RATE_LIMIT
	RateLimit float64
}

// DefaultLockDB returns the per-user lock database shared by every
// flakewatch process on the host.
func DefaultLockDB() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "flakewatch", "locks.db")
}

// DefaultServiceConfig returns the default service configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LockDB:      DefaultLockDB(),
		LockLease:   20 * time.Second,
		LockTimeout: 2 * time.Minute,
		Concurrency: 4,
		RateLimit:   10,
	}
}

// Validate checks if the configuration has valid values
func (c ServiceConfig) Validate() error {
	if c.LockDB == "" {
		return fmt.Errorf("lock_db is required: concurrent builds share issue locks through it")
	}
	if c.LockLease < time.Second || c.LockLease > 10*time.Minute {
		return fmt.Errorf("lock_lease must be between 1s and 10m (got %v)", c.LockLease)
	}
	if c.LockTimeout < time.Second || c.LockTimeout > 30*time.Minute {
		return fmt.Errorf("lock_timeout must be between 1s and 30m (got %v)", c.LockTimeout)
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64 (got %d)", c.Concurrency)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative (got %v)", c.RateLimit)
	}
	return nil
}

// ServiceConfigFromEnv creates a ServiceConfig from environment variables,
// falling back to defaults.
//
// Returns an error if any environment variable has an invalid value.
func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	cfg.GitHubToken = os.Getenv("FLAKEWATCH_GITHUB_TOKEN")
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
	cfg.GitHubURL = os.Getenv("FLAKEWATCH_GITHUB_URL")
	if v := os.Getenv("FLAKEWATCH_LOCK_DB"); v != "" {
		cfg.LockDB = v
	}

	if err := parseEnvDuration("FLAKEWATCH_LOCK_LEASE_SECS", &cfg.LockLease, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("FLAKEWATCH_LOCK_TIMEOUT_SECS", &cfg.LockTimeout, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("FLAKEWATCH_CONCURRENCY", &cfg.Concurrency); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("FLAKEWATCH_RATE_LIMIT", &cfg.RateLimit); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a whole number of units from an environment
// variable.
func parseEnvDuration(key string, dest *time.Duration, unit time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * unit
	return nil
}
