package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetChangeKey(t *testing.T) {
	assert.Equal(t, "potracker:changes:purchase_orders", getChangeKey(domain.KindPurchaseOrders))
}

func newTestStorage(t *testing.T) (*ChangeStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewChangeStorage(client, time.Hour, zap.NewNop()), mr
}

func TestChangeStorage_SaveAndList(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, domain.KindVendors)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	for i, kind := range []domain.Kind{domain.KindVendors, domain.KindUsers, domain.KindVendors} {
		rev, err := s.NextRevision(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), rev)

		require.NoError(t, s.Save(ctx, &domain.Change{
			ID:        fmt.Sprintf("c%d", rev),
			Kind:      kind,
			Revision:  rev,
			Timestamp: time.Now().UTC(),
		}))
	}

	latest, err := s.Latest(ctx, domain.KindVendors)
	require.NoError(t, err)
	assert.Equal(t, "c3", latest.ID)

	changes, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestChangeStorage_Expiry(t *testing.T) {
	s, mr := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &domain.Change{ID: "a", Kind: domain.KindUsers, Revision: 1}))
	mr.FastForward(2 * time.Hour)

	_, err := s.Latest(ctx, domain.KindUsers)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestChangeStorage_SkipsCorruptRecords(t *testing.T) {
	s, mr := newTestStorage(t)
	require.NoError(t, mr.Set(getChangeKey(domain.KindPurchaseOrders), "{"))

	changes, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
}
