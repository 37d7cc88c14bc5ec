package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the event server
type Config struct {
	// Server configuration
	HTTPPort int    `env:"POTRACKER_HTTP_PORT" envDefault:"8522"`
	GRPCPort int    `env:"POTRACKER_GRPC_PORT" envDefault:"9522"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// EventBus selects the change transport between instances: memory, redis or nats
	EventBus string `env:"EVENT_BUS" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// NATS configuration
	NATS NATSConfig

	// Auth configuration
	Auth AuthConfig

	// Realtime stream configuration
	Stream StreamConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
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

	// ChangeTTL bounds how long the latest change per kind is remembered
	ChangeTTL time.Duration `env:"REDIS_CHANGE_TTL" envDefault:"24h"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Name string `env:"NATS_CLIENT_NAME" envDefault:"potracker"`
}

// AuthConfig holds JWT validation configuration
type AuthConfig struct {
	Secret         string `env:"JWT_SECRET"`
	PreviousSecret string `env:"JWT_PREVIOUS_SECRET"`
}

// StreamConfig holds realtime stream configuration
type StreamConfig struct {
	HeartbeatInterval time.Duration `env:"SSE_HEARTBEAT_INTERVAL" envDefault:"30s"`
	ClientBuffer      int           `env:"STREAM_CLIENT_BUFFER" envDefault:"128"`
	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:1420,http://127.0.0.1:1420,tauri://localhost,http://tauri.localhost"`

	// Notify endpoint rate limiting
	NotifyRateLimit float64 `env:"NOTIFY_RATE_LIMIT" envDefault:"50"`
	NotifyBurst     int     `env:"NOTIFY_BURST" envDefault:"100"`

	HealthCheckInterval time.Duration `env:"HUB_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
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

	switch c.EventBus {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("NATS URL is required")
		}
	default:
		return fmt.Errorf("unsupported event bus: %s (must be memory, redis, or nats)", c.EventBus)
	}

	if c.Auth.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.Stream.ClientBuffer < 1 {
		return fmt.Errorf("client buffer must be at least 1")
	}

	return validateLogLevel(c.LogLevel)
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func validateLogLevel(level string) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	return nil
}
