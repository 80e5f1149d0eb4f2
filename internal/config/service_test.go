package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearServiceEnv(t *testing.T) {
	for _, key := range []string{
		"FLAKEWATCH_GITHUB_TOKEN", "GITHUB_TOKEN", "FLAKEWATCH_GITHUB_URL", "FLAKEWATCH_LOCK_DB",
		"FLAKEWATCH_LOCK_LEASE_SECS", "FLAKEWATCH_LOCK_TIMEOUT_SECS", "FLAKEWATCH_CONCURRENCY",
		"FLAKEWATCH_RATE_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func TestServiceConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg ServiceConfig)
	}{
		{
			name: "no environment variables uses defaults",
			check: func(t *testing.T, cfg ServiceConfig) {
				assert.Equal(t, DefaultServiceConfig(), cfg)
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"FLAKEWATCH_GITHUB_TOKEN":      "tok",
				"FLAKEWATCH_GITHUB_URL":        "https://ghe.example.com/api/v3/",
				"FLAKEWATCH_LOCK_DB":           "/var/lib/flakewatch/locks.db",
				"FLAKEWATCH_LOCK_LEASE_SECS":   "30",
				"FLAKEWATCH_LOCK_TIMEOUT_SECS": "60",
				"FLAKEWATCH_CONCURRENCY":       "8",
				"FLAKEWATCH_RATE_LIMIT":        "2.5",
			},
			check: func(t *testing.T, cfg ServiceConfig) {
				assert.Equal(t, "tok", cfg.GitHubToken)
				assert.Equal(t, "https://ghe.example.com/api/v3/", cfg.GitHubURL)
				assert.Equal(t, "/var/lib/flakewatch/locks.db", cfg.LockDB)
				assert.Equal(t, 30*time.Second, cfg.LockLease)
				assert.Equal(t, time.Minute, cfg.LockTimeout)
				assert.Equal(t, 8, cfg.Concurrency)
				assert.Equal(t, 2.5, cfg.RateLimit)
			},
		},
		{
			name: "lock database defaults to a shared file",
			check: func(t *testing.T, cfg ServiceConfig) {
				assert.Equal(t, DefaultLockDB(), cfg.LockDB)
				assert.Equal(t, "locks.db", filepath.Base(cfg.LockDB))
				assert.True(t, filepath.IsAbs(cfg.LockDB))
			},
		},
		{
			name:    "GITHUB_TOKEN fallback",
			envVars: map[string]string{"GITHUB_TOKEN": "fallback"},
			check: func(t *testing.T, cfg ServiceConfig) {
				assert.Equal(t, "fallback", cfg.GitHubToken)
			},
		},
		{name: "non-numeric concurrency", envVars: map[string]string{"FLAKEWATCH_CONCURRENCY": "many"}, wantErr: true},
		{name: "concurrency out of range", envVars: map[string]string{"FLAKEWATCH_CONCURRENCY": "0"}, wantErr: true},
		{name: "lease too short", envVars: map[string]string{"FLAKEWATCH_LOCK_LEASE_SECS": "0"}, wantErr: true},
		{name: "negative rate limit", envVars: map[string]string{"FLAKEWATCH_RATE_LIMIT": "-1"}, wantErr: true},
		{name: "bad rate limit", envVars: map[string]string{"FLAKEWATCH_RATE_LIMIT": "fast"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearServiceEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := ServiceConfigFromEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
