package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mardens/potracker/internal/application/broadcaster"
	"github.com/mardens/potracker/internal/application/notifier"
	"github.com/mardens/potracker/internal/auth"
	"github.com/mardens/potracker/internal/config"
	"github.com/mardens/potracker/pkg/adapters/events/memory"
	natsbus "github.com/mardens/potracker/pkg/adapters/events/nats"
	"github.com/mardens/potracker/pkg/adapters/events/redis"
	"github.com/mardens/potracker/pkg/adapters/metrics/prometheus"
	memorystorage "github.com/mardens/potracker/pkg/adapters/storage/memory"
	redisstorage "github.com/mardens/potracker/pkg/adapters/storage/redis"
	"github.com/mardens/potracker/pkg/api/grpc"
	"github.com/mardens/potracker/pkg/api/http"
	"github.com/mardens/potracker/pkg/api/websocket"
	"github.com/mardens/potracker/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
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

	logger.Info("starting potracker event server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("event_bus", cfg.EventBus))

	instanceID := uuid.New().String()

	// Initialize adapters
	eventBus, changeStorage, closeBackend := initBackend(cfg, instanceID, logger)

	metricsCollector := prometheus.NewCollector(promclient.DefaultRegisterer)

	validator, err := auth.NewValidator(cfg.Auth.Secret, cfg.Auth.PreviousSecret)
	if err != nil {
		logger.Fatal("failed to create token validator", zap.Error(err))
	}

	// Initialize application components
	notifierMgr := notifier.NewManager(
		eventBus,
		changeStorage,
		metricsCollector,
		notifier.NewValidator(),
		logger,
	)

	hub := broadcaster.NewHub(
		eventBus,
		metricsCollector,
		logger,
		cfg.Stream.ClientBuffer,
		cfg.Stream.HealthCheckInterval,
	)

	if err := hub.Start(); err != nil {
		logger.Fatal("failed to start broadcaster", zap.Error(err))
	}

	// Initialize API servers
	wsHandler := websocket.NewHandler(
		hub,
		validator,
		cfg.Stream.AllowedOrigins,
		cfg.Stream.HeartbeatInterval,
		logger,
	)

	httpServer := http.NewServer(&http.Config{
		Addr:              cfg.GetHTTPAddr(),
		Notifier:          notifierMgr,
		Hub:               hub,
		Validator:         validator,
		WebSocket:         wsHandler.HandleEvents,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		AllowedOrigins:    cfg.Stream.AllowedOrigins,
		NotifyRateLimit:   cfg.Stream.NotifyRateLimit,
		NotifyBurst:       cfg.Stream.NotifyBurst,
		Logger:            logger,
	})

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Addr:   cfg.GetGRPCAddr(),
		Logger: logger,
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

	grpcServer.SetServing(true)

	logger.Info("potracker event server started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("instance_id", instanceID))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	grpcServer.SetServing(false)

	if err := notifierMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("notifier shutdown error", zap.Error(err))
	}

	// Closing the hub ends every open stream so the HTTP server can drain
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("broadcaster shutdown error", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	closeBackend()

	logger.Info("potracker event server shut down complete")
}

// initBackend builds the event bus and change storage selected by cfg.
// The returned func releases their connections.
func initBackend(cfg *config.Config, instanceID string, logger *zap.Logger) (ports.EventBus, ports.ChangeStorage, func()) {
	switch cfg.EventBus {
	case "redis":
		redisClient := goredis.NewClient(&goredis.Options{
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

		// Test Redis connection
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		// One consumer group per instance so every instance sees every change
		bus, err := redis.NewStreamsEventBus(
			redisClient,
			"potracker-"+instanceID,
			fmt.Sprintf("potracker-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}

		storage := redisstorage.NewChangeStorage(redisClient, cfg.Redis.ChangeTTL, logger)

		return bus, storage, func() {
			if err := bus.Close(); err != nil {
				logger.Error("event bus close error", zap.Error(err))
			}
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		}

	case "nats":
		bus, err := natsbus.Connect(cfg.NATS.URL, cfg.NATS.Name, logger)
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

		return bus, memorystorage.NewInMemoryChangeStorage(), func() {
			if err := bus.Close(); err != nil {
				logger.Error("NATS close error", zap.Error(err))
			}
		}

	default:
		bus := memory.NewInMemoryEventBus(logger)
		return bus, memorystorage.NewInMemoryChangeStorage(), func() {
			_ = bus.Close()
		}
	}
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
