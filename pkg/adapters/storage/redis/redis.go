package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeStorage implements ChangeStorage using Redis
type ChangeStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewChangeStorage creates a new Redis change storage
func NewChangeStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ChangeStorage {
	return &ChangeStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Save persists change as the latest for its kind
func (s *ChangeStorage) Save(ctx context.Context, change *domain.Change) error {
	if change == nil {
		return fmt.Errorf("change is nil")
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}

	if err := s.client.Set(ctx, getChangeKey(change.Kind), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save change: %w", err)
	}

	s.logger.Debug("change saved",
		zap.String("kind", string(change.Kind)),
		zap.Int64("revision", change.Revision))

	return nil
}

// Latest retrieves the latest change for kind
func (s *ChangeStorage) Latest(ctx context.Context, kind domain.Kind) (*domain.Change, error) {
	data, err := s.client.Get(ctx, getChangeKey(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("no change for %s: %w", kind, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get change: %w", err)
	}

	var change domain.Change
	if err := json.Unmarshal(data, &change); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change: %w", err)
	}

	return &change, nil
}

// List returns the latest change for every kind that has one
func (s *ChangeStorage) List(ctx context.Context) ([]*domain.Change, error) {
	kinds := domain.Kinds()
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = getChangeKey(kind)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	changes := make([]*domain.Change, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var change domain.Change
		if err := json.Unmarshal([]byte(raw), &change); err != nil {
			s.logger.Warn("skipping corrupt change record",
				zap.String("key", keys[i]),
				zap.Error(err))
			continue
		}
		changes = append(changes, &change)
	}

	return changes, nil
}

// NextRevision increments the shared revision counter
func (s *ChangeStorage) NextRevision(ctx context.Context) (int64, error) {
	rev, err := s.client.Incr(ctx, revisionKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment revision: %w", err)
	}
	return rev, nil
}

const revisionKey = "potracker:revision"

// getChangeKey returns the Redis key for a kind's latest change
func getChangeKey(kind domain.Kind) string {
	return fmt.Sprintf("potracker:changes:%s", kind)
}
