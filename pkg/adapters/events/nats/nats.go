package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mardens/potracker/pkg/ports"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var _ ports.EventBus = (*EventBus)(nil)

// EventBus implements EventBus on core NATS subjects. Every subscriber
// receives every message, which is the fan-out the broadcaster needs.
type EventBus struct {
	conn   *nats.Conn
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string][]*nats.Subscription
}

// Connect dials the NATS server at addr
func Connect(addr, name string, logger *zap.Logger) (*EventBus, error) {
	opts := []nats.Option{
		nats.Name(name),
		// never give up reconnecting
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return NewEventBus(nc, logger), nil
}

// NewEventBus wraps an existing connection
func NewEventBus(conn *nats.Conn, logger *zap.Logger) *EventBus {
	return &EventBus{
		conn:   conn,
		logger: logger,
		subs:   make(map[string][]*nats.Subscription),
	}
}

// Publish publishes an event on the topic's subject
func (b *EventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.conn.Publish(subject(topic), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("subject", subject(topic)))
	return nil
}

// Subscribe delivers events on topic to handler until ctx is done
func (b *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub, err := b.conn.Subscribe(subject(topic), func(msg *nats.Msg) {
		var event ports.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("failed to unmarshal event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		if err := handler(ctx, event); err != nil {
			b.logger.Error("handler error",
				zap.String("subject", msg.Subject),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

// Unsubscribe removes every subscription on topic
func (b *EventBus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	subs := b.subs[topic]
	delete(b.subs, topic)
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
	}
	return nil
}

// Close drains pending messages and closes the connection
func (b *EventBus) Close() error {
	b.logger.Info("draining NATS connection")
	if err := b.conn.Drain(); err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

func subject(topic string) string {
	return "potracker." + topic
}
