package memory

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventBus_PublishFansOut(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := make(chan ports.Event, 1)
	b := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "po.changes", func(ctx context.Context, e ports.Event) error {
		a <- e
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "po.changes", func(ctx context.Context, e ports.Event) error {
		b <- e
		return errors.New("ignored")
	}))

	event := ports.Event{ID: "1", Type: ports.EventTypeChange, Kind: domain.KindVendors}
	require.NoError(t, bus.Publish(ctx, "po.changes", event))

	for _, ch := range []chan ports.Event{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, domain.KindVendors, got.Kind)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestInMemoryEventBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 500
	got := make(chan string, total)
	require.NoError(t, bus.Subscribe(ctx, "po.changes", func(ctx context.Context, e ports.Event) error {
		got <- e.ID
		return nil
	}))

	for i := 0; i < total; i++ {
		event := ports.Event{ID: strconv.Itoa(i), Type: ports.EventTypeChange, Kind: domain.KindVendors}
		require.NoError(t, bus.Publish(ctx, "po.changes", event))
	}

	for i := 0; i < total; i++ {
		select {
		case id := <-got:
			require.Equal(t, strconv.Itoa(i), id)
		case <-time.After(time.Second):
			t.Fatalf("event %d was not delivered", i)
		}
	}
}

func TestInMemoryEventBus_ClosedSubscriptionStopsDelivering(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	got := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(context.Background(), "po.changes", func(ctx context.Context, e ports.Event) error {
		got <- e
		return nil
	}))
	require.NoError(t, bus.Close())

	require.NoError(t, bus.Publish(context.Background(), "po.changes", ports.Event{ID: "1"}))
	select {
	case <-got:
		t.Fatal("closed bus delivered an event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestInMemoryEventBus_ContextCancelUnsubscribes(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	keep, keepCancel := context.WithCancel(context.Background())
	defer keepCancel()

	noop := func(ctx context.Context, e ports.Event) error { return nil }
	require.NoError(t, bus.Subscribe(ctx, "po.changes", noop))
	require.NoError(t, bus.Subscribe(keep, "po.changes", noop))
	assert.Equal(t, 2, bus.SubscriberCount("po.changes"))

	cancel()
	assert.Eventually(t, func() bool { return bus.SubscriberCount("po.changes") == 1 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx := context.Background()
	noop := func(ctx context.Context, e ports.Event) error { return nil }

	require.NoError(t, bus.Subscribe(ctx, "a", noop))
	require.NoError(t, bus.Subscribe(ctx, "b", noop))
	require.NoError(t, bus.Unsubscribe(ctx, "a"))
	assert.Equal(t, 0, bus.SubscriberCount("a"))
	assert.Equal(t, 1, bus.SubscriberCount("b"))

	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.SubscriberCount("b"))
}
