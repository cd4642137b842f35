package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phasekit/phaserun/internal/application/checkpoint"
	"github.com/phasekit/phaserun/internal/application/orchestrator"
	"github.com/phasekit/phaserun/internal/application/resolver"
	"github.com/phasekit/phaserun/internal/application/workers"
	"github.com/phasekit/phaserun/internal/config"
	eventsmemory "github.com/phasekit/phaserun/pkg/adapters/events/memory"
	eventsredis "github.com/phasekit/phaserun/pkg/adapters/events/redis"
	"github.com/phasekit/phaserun/pkg/adapters/metrics/prometheus"
	storagememory "github.com/phasekit/phaserun/pkg/adapters/storage/memory"
	storageredis "github.com/phasekit/phaserun/pkg/adapters/storage/redis"
	"github.com/phasekit/phaserun/pkg/api/grpc"
	"github.com/phasekit/phaserun/pkg/api/http"
	"github.com/phasekit/phaserun/pkg/api/websocket"
	"github.com/phasekit/phaserun/pkg/ports"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting phaserun",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("mode", cfg.Execution.Mode))

	// Initialize adapters. Redis is optional; without it, state and events
	// stay in process.
	var (
		eventBus     ports.EventBus
		stateStorage ports.StateStorage
		redisClient  *goredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		streamBus, err := eventsredis.NewStreamsEventBus(
			redisClient,
			"phaserun-consumers",
			fmt.Sprintf("phaserun-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
		eventBus = streamBus

		stateStorage = storageredis.NewStateStorage(
			redisClient,
			24*time.Hour, // states expire a day after the last update
			logger,
		)
	} else {
		eventBus = eventsmemory.NewEventBus()
		stateStorage = storagememory.NewStateStorage()
	}

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	checkpointMgr, err := checkpoint.NewManager(checkpoint.Config{
		Dir:                  cfg.Checkpoint.Dir,
		MaxPerProject:        cfg.Checkpoint.MaxPerProject,
		MaxAge:               cfg.Checkpoint.MaxAge,
		CacheSize:            cfg.Checkpoint.CacheSize,
		AllowVersionMismatch: cfg.Checkpoint.AllowVersionMismatch,
	}, metricsCollector, logger)
	if err != nil {
		logger.Fatal("failed to create checkpoint manager", zap.Error(err))
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		nil, // task bodies are supplied by the embedding system
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	mode, err := orchestrator.ParseMode(cfg.Execution.Mode)
	if err != nil {
		logger.Fatal("invalid execution mode", zap.Error(err))
	}

	orch := orchestrator.New(
		orchestrator.Config{
			Mode:                mode,
			MaxConcurrentPhases: cfg.Execution.MaxConcurrentPhases,
			MaxConcurrentTasks:  cfg.Execution.MaxConcurrentTasks,
			PhaseTimeout:        cfg.Execution.PhaseTimeout,
			RetryAttempts:       cfg.Execution.RetryAttempts,
			RetryBackoff:        cfg.Execution.RetryBackoff,
			ContinueOnFailure:   cfg.Execution.ContinueOnFailure,
			CheckpointInterval:  cfg.Checkpoint.Interval,
		},
		resolver.New(logger),
		workerPool,
		checkpointMgr,
		eventBus,
		stateStorage,
		metricsCollector,
		logger,
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orch,
		Storage:      stateStorage,
		Checkpoints:  checkpointMgr,
		Logger:       logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:         cfg.GRPCPort,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("phaserun started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.String("checkpoint_dir", cfg.Checkpoint.Dir))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("phaserun shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
