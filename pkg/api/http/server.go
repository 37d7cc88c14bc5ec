package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mardens/potracker/internal/application/broadcaster"
	"github.com/mardens/potracker/internal/application/notifier"
	"github.com/mardens/potracker/internal/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultHeartbeatInterval is the SSE keep-alive comment period
const DefaultHeartbeatInterval = 30 * time.Second

// TokenValidator validates stream and API tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	notifier  *notifier.Manager
	hub       *broadcaster.Hub
	validator TokenValidator
	limiter   *notifyLimiter
	heartbeat time.Duration
	logger    *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	// Addr is the listen address, e.g. ":8522"
	Addr      string
	Notifier  *notifier.Manager
	Hub       *broadcaster.Hub
	Validator TokenValidator

	// WebSocket serves /api/events/ws when set
	WebSocket gin.HandlerFunc

	HeartbeatInterval time.Duration
	AllowedOrigins    []string
	NotifyRateLimit   float64
	NotifyBurst       int

	// Gatherer backs /metrics; the default registry is used when nil
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		notifier:  cfg.Notifier,
		hub:       cfg.Hub,
		validator: cfg.Validator,
		limiter:   newNotifyLimiter(cfg.NotifyRateLimit, cfg.NotifyBurst),
		heartbeat: heartbeat,
		logger:    logger,
	}

	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(cfg *Config) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	metrics := promhttp.Handler()
	if cfg.Gatherer != nil {
		metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}
	s.router.GET("/metrics", gin.WrapH(metrics))

	events := s.router.Group("/api/events")
	{
		events.GET("", s.handleEvents)
		events.GET("/status", s.handleStatus)
		events.POST("/notify",
			AuthMiddleware(s.validator),
			rateLimitMiddleware(s.limiter, s.logger),
			s.handleNotify)

		if cfg.WebSocket != nil {
			events.GET("/ws", cfg.WebSocket)
		}
	}
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	s.limiter.stop()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// The query carries the stream token, so it is never logged
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
