package broadcaster

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically reports hub status
type HealthMonitor struct {
	hub      *Hub
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus represents the health status of the hub
type HealthStatus struct {
	Running     bool
	Clients     int
	ByTransport map[string]int
	Healthy     bool
	Timestamp   time.Time
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(hub *Hub, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		hub:      hub,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the health monitor
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	go m.run(m.stopCh)
}

// Stop stops the health monitor
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *HealthMonitor) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *HealthMonitor) checkHealth() {
	status := m.GetStatus()

	m.logger.Info("broadcaster health check",
		zap.Int("clients", status.Clients),
		zap.Int("sse", status.ByTransport["sse"]),
		zap.Int("websocket", status.ByTransport["websocket"]),
		zap.Bool("healthy", status.Healthy))

	m.hub.metrics.RecordHubClients(status.Clients)

	if !status.Healthy {
		m.logger.Warn("broadcaster is not running")
	}
}

// GetStatus returns the current health status
func (m *HealthMonitor) GetStatus() *HealthStatus {
	running := m.hub.Running()
	return &HealthStatus{
		Running:     running,
		Clients:     m.hub.ClientCount(),
		ByTransport: m.hub.clientsByTransport(),
		Healthy:     running,
		Timestamp:   time.Now(),
	}
}

// Health returns the hub's health monitor
func (h *Hub) Health() *HealthMonitor {
	return h.health
}
