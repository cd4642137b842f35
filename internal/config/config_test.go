package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, "adaptive", cfg.Execution.Mode)
	assert.Equal(t, 4, cfg.Execution.MaxConcurrentPhases)
	assert.Equal(t, 8, cfg.Execution.MaxConcurrentTasks)
	assert.Equal(t, 30*time.Minute, cfg.Execution.PhaseTimeout)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.Interval)
	assert.Equal(t, 8, cfg.Workers.PoolSize)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PHASERUN_MODE", "checkpoint")
	t.Setenv("PHASERUN_MAX_CONCURRENT_PHASES", "2")
	t.Setenv("PHASERUN_PHASE_TIMEOUT", "5m")
	t.Setenv("PHASERUN_CHECKPOINT_DIR", "/var/lib/phaserun")
	t.Setenv("PHASERUN_REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "checkpoint", cfg.Execution.Mode)
	assert.Equal(t, 2, cfg.Execution.MaxConcurrentPhases)
	assert.Equal(t, 5*time.Minute, cfg.Execution.PhaseTimeout)
	assert.Equal(t, "/var/lib/phaserun", cfg.Checkpoint.Dir)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Execution.Mode = "eager" }, "invalid execution mode"},
		{"zero phase pool", func(c *Config) { c.Execution.MaxConcurrentPhases = 0 }, "max concurrent phases"},
		{"zero task pool", func(c *Config) { c.Execution.MaxConcurrentTasks = 0 }, "max concurrent tasks"},
		{"negative retries", func(c *Config) { c.Execution.RetryAttempts = -1 }, "retry attempts"},
		{"missing checkpoint dir", func(c *Config) { c.Checkpoint.Dir = "" }, "checkpoint directory"},
		{"sub-second interval", func(c *Config) { c.Checkpoint.Interval = 100 * time.Millisecond }, "checkpoint interval"},
		{"zero workers", func(c *Config) { c.Workers.PoolSize = 0 }, "worker pool size"},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis address"},
		{"bad http port", func(c *Config) { c.HTTPPort = 0 }, "HTTP port"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAddrHelpers(t *testing.T) {
	cfg := &Config{HTTPPort: 8080, GRPCPort: 9090}
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}
