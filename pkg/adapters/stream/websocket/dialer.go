// Package websocket implements realtime.Dialer over a WebSocket connection.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mardens/potracker/pkg/realtime"
	"go.uber.org/zap"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// Dialer opens WebSocket streams
type Dialer struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewDialer creates a Dialer. pingInterval <= 0 uses 30s.
func NewDialer(pingInterval time.Duration, logger *zap.Logger) *Dialer {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Dial connects to rawURL, rewriting http(s) schemes to ws(s)
func (d *Dialer) Dial(ctx context.Context, rawURL string) (realtime.Stream, error) {
	wsURL, err := toWebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial websocket (status: %s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		d.logger.Debug("received pong from server")
		return nil
	})

	s := &stream{
		conn: conn,
		done: make(chan struct{}),
	}
	go s.pingLoop(d.pingInterval, d.logger)

	return s, nil
}

func toWebSocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported stream URL scheme: %q", u.Scheme)
	}
	return u.String(), nil
}

type stream struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// Next returns the next text or binary message
func (s *stream) Next(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a normal closure frame and closes the connection
func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *stream) pingLoop(interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
