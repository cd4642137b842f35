package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the phaserun service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"PHASERUN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"PHASERUN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Execution configuration
	Execution ExecutionConfig

	// Checkpoint configuration
	Checkpoint CheckpointConfig

	// Worker configuration
	Workers WorkerConfig

	// Redis configuration (optional state mirror and event stream)
	Redis RedisConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// ExecutionConfig holds the orchestrator's scheduling configuration
type ExecutionConfig struct {
	Mode                string        `env:"PHASERUN_MODE" envDefault:"adaptive"`
	MaxConcurrentPhases int           `env:"PHASERUN_MAX_CONCURRENT_PHASES" envDefault:"4"`
	MaxConcurrentTasks  int           `env:"PHASERUN_MAX_CONCURRENT_TASKS" envDefault:"8"`
	PhaseTimeout        time.Duration `env:"PHASERUN_PHASE_TIMEOUT" envDefault:"30m"`
	RetryAttempts       int           `env:"PHASERUN_RETRY_ATTEMPTS" envDefault:"2"`
	RetryBackoff        time.Duration `env:"PHASERUN_RETRY_BACKOFF" envDefault:"1s"`
	ContinueOnFailure   bool          `env:"PHASERUN_CONTINUE_ON_FAILURE" envDefault:"false"`
}

// CheckpointConfig holds checkpoint persistence configuration
type CheckpointConfig struct {
	Dir                  string        `env:"PHASERUN_CHECKPOINT_DIR" envDefault:"./checkpoints"`
	Interval             time.Duration `env:"PHASERUN_CHECKPOINT_INTERVAL" envDefault:"30s"`
	MaxPerProject        int           `env:"PHASERUN_CHECKPOINT_MAX_PER_PROJECT" envDefault:"20"`
	MaxAge               time.Duration `env:"PHASERUN_CHECKPOINT_MAX_AGE" envDefault:"168h"`
	CacheSize            int           `env:"PHASERUN_CHECKPOINT_CACHE_SIZE" envDefault:"16"`
	AllowVersionMismatch bool          `env:"PHASERUN_CHECKPOINT_ALLOW_VERSION_MISMATCH" envDefault:"false"`
}

// WorkerConfig holds task worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"PHASERUN_WORKER_POOL_SIZE" envDefault:"8"`
	HealthCheckInterval time.Duration `env:"PHASERUN_WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// RedisConfig holds Redis connection configuration. Redis is optional: when
// disabled, run state stays in memory and events are not streamed externally.
type RedisConfig struct {
	Enabled  bool   `env:"PHASERUN_REDIS_ENABLED" envDefault:"false"`
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// TimeoutConfig holds service-level timeout configuration
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate execution config
	validModes := map[string]bool{
		"sequential": true,
		"parallel":   true,
		"adaptive":   true,
		"checkpoint": true,
	}
	if !validModes[c.Execution.Mode] {
		return fmt.Errorf("invalid execution mode: %s (must be sequential, parallel, adaptive, or checkpoint)", c.Execution.Mode)
	}
	if c.Execution.MaxConcurrentPhases < 1 {
		return fmt.Errorf("max concurrent phases must be at least 1")
	}
	if c.Execution.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max concurrent tasks must be at least 1")
	}
	if c.Execution.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}

	// Validate checkpoint config
	if c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint directory is required")
	}
	if c.Checkpoint.Interval < time.Second {
		return fmt.Errorf("checkpoint interval must be at least 1s")
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
