package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mardens/potracker/internal/application/notifier"
	"github.com/mardens/potracker/pkg/ports"
	"go.uber.org/zap"
)

// DefaultClientBuffer is the per-client event buffer size
const DefaultClientBuffer = 128

// ErrNotRunning is returned by Register when the hub is not started
var ErrNotRunning = errors.New("broadcaster is not running")

// Hub manages stream clients and fans change events out to them
type Hub struct {
	eventBus   ports.EventBus
	metrics    ports.MetricsCollector
	logger     *zap.Logger
	bufferSize int
	health     *HealthMonitor

	mu      sync.RWMutex
	clients map[uint64]*Client
	nextID  uint64
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Client is a single connected stream consumer
type Client struct {
	ID        uint64
	Transport string
	Connected time.Time

	events chan ports.Event
	once   sync.Once
}

// Events returns the channel the client reads from. It is closed when the
// client is unregistered or the hub shuts down.
func (c *Client) Events() <-chan ports.Event {
	return c.events
}

func (c *Client) close() {
	c.once.Do(func() { close(c.events) })
}

// NewHub creates a new broadcaster hub
func NewHub(
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	bufferSize int,
	healthCheckInterval time.Duration,
) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultClientBuffer
	}

	h := &Hub{
		eventBus:   eventBus,
		metrics:    metrics,
		logger:     logger,
		bufferSize: bufferSize,
		clients:    make(map[uint64]*Client),
	}
	h.health = NewHealthMonitor(h, healthCheckInterval, logger)

	return h
}

// Start subscribes the hub to change events
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.running = true
	h.mu.Unlock()

	h.logger.Info("starting broadcaster", zap.Int("client_buffer", h.bufferSize))

	if err := h.eventBus.Subscribe(h.ctx, notifier.Topic, h.broadcast); err != nil {
		h.mu.Lock()
		h.running = false
		h.cancel()
		h.mu.Unlock()
		return fmt.Errorf("failed to subscribe to %s: %w", notifier.Topic, err)
	}

	h.health.Start()

	h.logger.Info("broadcaster started", zap.String("topic", notifier.Topic))
	return nil
}

// Shutdown stops the hub and disconnects every client
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.cancel()
	clients := h.clients
	h.clients = make(map[uint64]*Client)
	h.mu.Unlock()

	h.logger.Info("shutting down broadcaster", zap.Int("clients", len(clients)))

	h.health.Stop()

	for _, c := range clients {
		c.close()
		h.metrics.RecordClientDisconnected(c.Transport)
	}
	h.metrics.RecordHubClients(0)

	if err := h.eventBus.Unsubscribe(ctx, notifier.Topic); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	h.logger.Info("broadcaster shut down complete")
	return nil
}

// Running reports whether the hub is accepting clients
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Register adds a client for the given transport
func (h *Hub) Register(transport string) (*Client, error) {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil, ErrNotRunning
	}
	h.nextID++
	c := &Client{
		ID:        h.nextID,
		Transport: transport,
		Connected: time.Now(),
		events:    make(chan ports.Event, h.bufferSize),
	}
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordClientConnected(transport)
	h.metrics.RecordHubClients(count)
	h.logger.Debug("client registered",
		zap.Uint64("client_id", c.ID),
		zap.String("transport", transport),
		zap.Int("clients", count))

	return c, nil
}

// Unregister removes a client and closes its channel
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	c.close()
	h.metrics.RecordClientDisconnected(c.Transport)
	h.metrics.RecordHubClients(count)
	h.logger.Debug("client unregistered",
		zap.Uint64("client_id", c.ID),
		zap.String("transport", c.Transport),
		zap.Duration("connected_for", time.Since(c.Connected)))
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// clientsByTransport counts registered clients per transport
func (h *Hub) clientsByTransport() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int)
	for _, c := range h.clients {
		counts[c.Transport]++
	}
	return counts
}

// broadcast is the event bus handler. Sends happen under the read lock so
// a client channel is never closed mid-send.
func (h *Hub) broadcast(ctx context.Context, event ports.Event) error {
	if event.Type != ports.EventTypeChange || !event.Kind.Valid() {
		h.logger.Debug("ignoring event",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)))
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.events <- event:
		default:
			h.metrics.RecordEventDropped(c.Transport)
			h.logger.Warn("client lagging, event dropped",
				zap.Uint64("client_id", c.ID),
				zap.String("kind", string(event.Kind)))
		}
	}

	return nil
}
