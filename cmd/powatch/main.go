// Command powatch subscribes to the potracker change stream and refetches
// each collection when it changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mardens/potracker/internal/config"
	"github.com/mardens/potracker/internal/watcher"
	"github.com/mardens/potracker/pkg/adapters/metrics/prometheus"
	"github.com/mardens/potracker/pkg/adapters/stream/sse"
	"github.com/mardens/potracker/pkg/adapters/stream/websocket"
	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/realtime"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set by build flags
var Version = "dev"

func main() {
	cfg, err := config.LoadWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting powatch",
		zap.String("version", Version),
		zap.String("server", cfg.ServerURL),
		zap.String("transport", cfg.Transport))

	reg := promclient.NewRegistry()
	collector := prometheus.NewCollector(reg)
	metricsServer := startMetrics(cfg.MetricsAddr, reg, logger)

	var dialer realtime.Dialer
	switch cfg.Transport {
	case "websocket":
		dialer = websocket.NewDialer(0, logger)
	default:
		dialer = sse.NewDialer(nil, logger)
	}

	refresher := watcher.NewRefresher(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.ResourceURL,
		logger,
	)

	lost := make(chan struct{}, 1)
	sub := realtime.New(dialer,
		realtime.WithEndpoint(cfg.StreamEndpoint()),
		realtime.WithLogger(logger),
		realtime.WithMetrics(collector),
		realtime.WithStateListener(func(st realtime.State) {
			logger.Info("stream state changed", zap.String("state", string(st)))
			if st == realtime.StateDisconnected {
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		}),
	)
	sub.SetHandlers(refresher.Handlers())

	if cfg.Token == "" {
		logger.Warn("POWATCH_TOKEN is empty, waiting for SIGHUP")
	}
	applyToken(sub, refresher, cfg.Token, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	exitCode := 0
	var reconnect <-chan time.Time
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig != syscall.SIGHUP {
				logger.Info("received shutdown signal")
				break loop
			}
			// SIGHUP re-reads the token, e.g. after a login refresh
			next, err := config.LoadWatcher()
			if err != nil {
				logger.Error("failed to reload config", zap.Error(err))
				continue
			}
			applyToken(sub, refresher, next.Token, logger)
		case <-lost:
			if cfg.ReconnectDelay <= 0 {
				logger.Error("realtime stream lost")
				exitCode = 1
				break loop
			}
			logger.Warn("realtime stream lost, reconnecting",
				zap.Duration("delay", cfg.ReconnectDelay))
			reconnect = time.After(cfg.ReconnectDelay)
		case <-reconnect:
			reconnect = nil
			sub.Reconnect()
			// changes made while the stream was down were missed
			refreshAll(refresher, logger)
		}
	}

	sub.Close()
	sub.Wait()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(ctx)
		cancel()
	}

	logger.Info("powatch stopped")
	if exitCode != 0 {
		_ = logger.Sync()
		os.Exit(exitCode)
	}
}

// applyToken switches the stream to token and refetches every collection,
// as a freshly opened dashboard would
func applyToken(sub *realtime.Subscriber, refresher *watcher.Refresher, token string, logger *zap.Logger) {
	if token == sub.Token() {
		return
	}

	refresher.SetToken(token)
	sub.SetToken(token)

	if token == "" {
		logger.Warn("no token configured, stream closed")
		return
	}

	refreshAll(refresher, logger)
}

func refreshAll(refresher *watcher.Refresher, logger *zap.Logger) {
	for _, kind := range domain.Kinds() {
		if _, err := refresher.Refresh(context.Background(), kind); err != nil {
			logger.Warn("refresh failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
}

func startMetrics(addr string, reg *promclient.Registry, logger *zap.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return srv
}

// initLogger builds a console logger for interactive use
func initLogger(level string) *zap.Logger {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
