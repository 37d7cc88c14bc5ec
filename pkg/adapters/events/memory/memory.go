package memory

import (
	"context"
	"sync"

	"github.com/mardens/potracker/pkg/ports"
	"go.uber.org/zap"
)

// InMemoryEventBus implements EventBus using in-process handlers.
// Each subscription receives events in publish order.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]*subscription
	nextID      uint64
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]*subscription),
		logger:      logger,
	}
}

// Publish queues an event for every subscriber of a topic. It never waits
// for handlers.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		sub.enqueue(context.WithoutCancel(ctx), event)
	}
	return nil
}

// Subscribe subscribes to events on a specific topic until ctx is done
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := newSubscription(topic, handler, e.logger)

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscription)
	}
	e.subscribers[topic][id] = sub
	e.mu.Unlock()

	go sub.run()

	// Clean up on context cancellation unless the bus dropped it first
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(topic, id)
		case <-sub.quit:
		}
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscribers[topic] {
		sub.stop()
	}
	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and cleans up resources
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	e.subscribers = make(map[string]map[uint64]*subscription)
	return nil
}

// SubscriberCount returns the number of handlers registered on topic
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

// unsubscribe removes a handler from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sub, ok := e.subscribers[topic][id]; ok {
		sub.stop()
	}
	delete(e.subscribers[topic], id)
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
}

type delivery struct {
	ctx   context.Context
	event ports.Event
}

// subscription feeds one handler from an unbounded FIFO queue
type subscription struct {
	topic   string
	handler ports.EventHandler
	logger  *zap.Logger

	mu    sync.Mutex
	queue []delivery

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func newSubscription(topic string, handler ports.EventHandler, logger *zap.Logger) *subscription {
	return &subscription{
		topic:   topic,
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

func (s *subscription) enqueue(ctx context.Context, event ports.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, delivery{ctx: ctx, event: event})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued delivery
func (s *subscription) next() (delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return delivery{}, false
	}
	d := s.queue[0]
	s.queue[0] = delivery{}
	s.queue = s.queue[1:]
	return d, true
}

// run calls the handler for each queued event, one at a time
func (s *subscription) run() {
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		for {
			select {
			case <-s.quit:
				return
			default:
			}
			d, ok := s.next()
			if !ok {
				break
			}
			if err := s.handler(d.ctx, d.event); err != nil {
				s.logger.Warn("event handler error",
					zap.String("topic", s.topic),
					zap.String("event_id", d.event.ID),
					zap.Error(err))
			}
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.quit) })
}
