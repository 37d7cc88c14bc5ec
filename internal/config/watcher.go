package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// WatcherConfig holds configuration for the powatch CLI
type WatcherConfig struct {
	ServerURL string `env:"POWATCH_SERVER_URL" envDefault:"http://localhost:8522"`
	Token     string `env:"POWATCH_TOKEN"`
	Transport string `env:"POWATCH_TRANSPORT" envDefault:"sse"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	RequestTimeout time.Duration `env:"POWATCH_REQUEST_TIMEOUT" envDefault:"15s"`

	// ReconnectDelay is the pause before redialing a dropped stream; 0 exits instead
	ReconnectDelay time.Duration `env:"POWATCH_RECONNECT_DELAY" envDefault:"5s"`
	MetricsAddr    string        `env:"POWATCH_METRICS_ADDR"`
}

// LoadWatcher reads watcher configuration from environment variables
func LoadWatcher() (*WatcherConfig, error) {
	cfg := &WatcherConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *WatcherConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid server URL: %q", c.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL must be http or https: %q", c.ServerURL)
	}

	switch c.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("unsupported transport: %s (must be sse or websocket)", c.Transport)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect delay must not be negative")
	}

	return validateLogLevel(c.LogLevel)
}

// StreamEndpoint returns the realtime endpoint for the configured transport
func (c *WatcherConfig) StreamEndpoint() string {
	path := "/api/events"
	if c.Transport == "websocket" {
		path = "/api/events/ws"
	}
	return joinURL(c.ServerURL, path)
}

// ResourceURL returns the absolute URL of an API path on the server
func (c *WatcherConfig) ResourceURL(path string) string {
	return joinURL(c.ServerURL, path)
}

func joinURL(base, path string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + path
	}
	return u.JoinPath(path).String()
}
