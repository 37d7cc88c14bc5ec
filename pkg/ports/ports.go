// Package ports declares the interfaces adapters implement.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/mardens/potracker/pkg/domain"
)

// EventType classifies bus events
type EventType string

const (
	EventTypeChange EventType = "collection.changed"
)

// Event is the unit carried on the event bus
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Kind      domain.Kind            `json:"kind"`
	Revision  int64                  `json:"revision"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler consumes a single bus event
type EventHandler func(ctx context.Context, event Event) error

// EventBus moves change events between server instances
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	// Subscribe registers handler until ctx is cancelled
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// ChangeStorage keeps the latest change per kind
type ChangeStorage interface {
	Save(ctx context.Context, change *domain.Change) error
	Latest(ctx context.Context, kind domain.Kind) (*domain.Change, error)
	List(ctx context.Context) ([]*domain.Change, error)
	// NextRevision returns a strictly increasing revision number
	NextRevision(ctx context.Context) (int64, error)
}

// MetricsCollector records server and watcher metrics
type MetricsCollector interface {
	RecordNotification(kind string, status string)
	RecordClientConnected(transport string)
	RecordClientDisconnected(transport string)
	RecordEventDropped(transport string)
	RecordHubClients(count int)
	RecordFrameDispatched(kind string)
	RecordFrameDiscarded(reason string)
	RecordHandlerFailure(kind string)
	RecordStreamState(state string)
	RecordHandlerDuration(kind string, duration time.Duration)
}

// ErrNotFound is returned by storage lookups that match nothing
var ErrNotFound = errors.New("not found")
