package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mardens/potracker/internal/application/notifier"
	"github.com/mardens/potracker/pkg/adapters/events/memory"
	"github.com/mardens/potracker/pkg/domain"
	"github.com/mardens/potracker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMetrics struct {
	mu        sync.Mutex
	dropped   map[string]int
	connected map[string]int
	hub       int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: map[string]int{}, connected: map[string]int{}}
}

func (m *recordingMetrics) RecordNotification(string, string) {}
func (m *recordingMetrics) RecordClientConnected(t string) {
	m.mu.Lock()
	m.connected[t]++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordClientDisconnected(t string) {
	m.mu.Lock()
	m.connected[t]--
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordEventDropped(t string) {
	m.mu.Lock()
	m.dropped[t]++
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordHubClients(n int) {
	m.mu.Lock()
	m.hub = n
	m.mu.Unlock()
}
func (m *recordingMetrics) RecordFrameDispatched(string)                {}
func (m *recordingMetrics) RecordFrameDiscarded(string)                 {}
func (m *recordingMetrics) RecordHandlerFailure(string)                 {}
func (m *recordingMetrics) RecordStreamState(string)                    {}
func (m *recordingMetrics) RecordHandlerDuration(string, time.Duration) {}

func (m *recordingMetrics) droppedFor(t string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[t]
}

func startHub(t *testing.T, buffer int) (*Hub, *memory.InMemoryEventBus, *recordingMetrics) {
	t.Helper()
	bus := memory.NewInMemoryEventBus(zap.NewNop())
	metrics := newRecordingMetrics()
	hub := NewHub(bus, metrics, zap.NewNop(), buffer, 0)
	require.NoError(t, hub.Start())
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })
	return hub, bus, metrics
}

func changeEvent(kind domain.Kind, rev int64) ports.Event {
	return ports.Event{ID: "evt", Type: ports.EventTypeChange, Kind: kind, Revision: rev, Timestamp: time.Now()}
}

func TestHub_FansOutToEveryClient(t *testing.T) {
	hub, bus, _ := startHub(t, 0)

	a, err := hub.Register("sse")
	require.NoError(t, err)
	b, err := hub.Register("websocket")
	require.NoError(t, err)
	assert.Equal(t, 2, hub.ClientCount())

	require.NoError(t, bus.Publish(context.Background(), notifier.Topic, changeEvent(domain.KindVendors, 1)))

	for _, c := range []*Client{a, b} {
		select {
		case e := <-c.Events():
			assert.Equal(t, domain.KindVendors, e.Kind)
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive event", c.ID)
		}
	}
}

func TestHub_IgnoresForeignEvents(t *testing.T) {
	hub, _, _ := startHub(t, 0)
	c, err := hub.Register("sse")
	require.NoError(t, err)

	require.NoError(t, hub.broadcast(context.Background(), ports.Event{Type: "other", Kind: domain.KindUsers}))
	require.NoError(t, hub.broadcast(context.Background(), ports.Event{Type: ports.EventTypeChange, Kind: "invoices"}))

	assert.Len(t, c.Events(), 0)
}

func TestHub_LaggingClientDropsEvents(t *testing.T) {
	hub, _, metrics := startHub(t, 2)
	slow, err := hub.Register("sse")
	require.NoError(t, err)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, hub.broadcast(context.Background(), changeEvent(domain.KindUsers, i)))
	}

	assert.Len(t, slow.Events(), 2)
	assert.Equal(t, 3, metrics.droppedFor("sse"))

	first := <-slow.Events()
	assert.Equal(t, int64(1), first.Revision)
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub, _, _ := startHub(t, 0)
	c, err := hub.Register("sse")
	require.NoError(t, err)

	hub.Unregister(c)
	hub.Unregister(c)

	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	bus := memory.NewInMemoryEventBus(zap.NewNop())
	hub := NewHub(bus, newRecordingMetrics(), zap.NewNop(), 0, 0)

	_, err := hub.Register("sse")
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, hub.Start())
	c, err := hub.Register("sse")
	require.NoError(t, err)
	assert.True(t, hub.Health().GetStatus().Healthy)

	require.NoError(t, hub.Shutdown(context.Background()))

	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.False(t, hub.Running())
	assert.False(t, hub.Health().GetStatus().Healthy)
	assert.Equal(t, 0, bus.SubscriberCount(notifier.Topic))
}

func TestHealthMonitor_ReportsClients(t *testing.T) {
	bus := memory.NewInMemoryEventBus(zap.NewNop())
	metrics := newRecordingMetrics()
	hub := NewHub(bus, metrics, zap.NewNop(), 0, 10*time.Millisecond)
	require.NoError(t, hub.Start())
	defer hub.Shutdown(context.Background())

	_, err := hub.Register("websocket")
	require.NoError(t, err)

	status := hub.Health().GetStatus()
	assert.Equal(t, 1, status.Clients)
	assert.Equal(t, 1, status.ByTransport["websocket"])

	assert.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.hub == 1
	}, time.Second, 5*time.Millisecond)
}
