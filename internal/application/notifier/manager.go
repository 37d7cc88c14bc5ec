package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"go.uber.org/zap"
)

// Topic is the event bus topic change events are published on
const Topic = "po.changes"

// ErrShutdown is returned by Notify after Shutdown
var ErrShutdown = errors.New("notifier is shut down")

// Manager coordinates change notifications
type Manager struct {
	eventBus  ports.EventBus
	storage   ports.ChangeStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	closed atomic.Bool
}

// NewManager creates a new notifier manager
func NewManager(
	eventBus ports.EventBus,
	storage ports.ChangeStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		eventBus:  eventBus,
		storage:   storage,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
}

// Notify validates and publishes a change notification
func (m *Manager) Notify(ctx context.Context, n *Notification) (*domain.Change, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}

	if err := m.validator.Validate(n); err != nil {
		m.logger.Warn("notification rejected", zap.Error(err))
		m.metrics.RecordNotification("invalid", "rejected")
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	revision, err := m.storage.NextRevision(ctx)
	if err != nil {
		m.metrics.RecordNotification(string(n.Kind), "failed")
		return nil, fmt.Errorf("failed to allocate revision: %w", err)
	}

	change := &domain.Change{
		ID:        uuid.New().String(),
		Kind:      n.Kind,
		Revision:  revision,
		Source:    n.Source,
		Timestamp: time.Now().UTC(),
	}

	// Losing the status record is not worth failing the notification
	if err := m.storage.Save(ctx, change); err != nil {
		m.logger.Error("failed to save change",
			zap.String("change_id", change.ID),
			zap.Error(err))
	}

	event := ports.Event{
		ID:        change.ID,
		Type:      ports.EventTypeChange,
		Kind:      change.Kind,
		Revision:  change.Revision,
		Timestamp: change.Timestamp,
	}
	if change.Source != "" {
		event.Data = map[string]interface{}{"source": change.Source}
	}

	if err := m.eventBus.Publish(ctx, Topic, event); err != nil {
		m.logger.Error("failed to publish change event",
			zap.String("change_id", change.ID),
			zap.String("kind", string(change.Kind)),
			zap.Error(err))
		m.metrics.RecordNotification(string(n.Kind), "failed")
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	m.metrics.RecordNotification(string(n.Kind), "published")
	m.logger.Info("change published",
		zap.String("change_id", change.ID),
		zap.String("kind", string(change.Kind)),
		zap.Int64("revision", change.Revision),
		zap.String("source", change.Source))

	return change, nil
}

// Status returns the latest change recorded for each kind
func (m *Manager) Status(ctx context.Context) ([]*domain.Change, error) {
	changes, err := m.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return changes, nil
}

// Shutdown stops accepting notifications
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)
	m.logger.Info("notifier shut down")
	return nil
}
