package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	notifications     *prometheus.CounterVec
	clientsConnected  *prometheus.GaugeVec
	clientConnections *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	hubClients        prometheus.Gauge

	framesDispatched *prometheus.CounterVec
	framesDiscarded  *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	streamState      *prometheus.GaugeVec
	handlerDuration  *prometheus.HistogramVec
}

// streamStates lists every state reported by the realtime subscriber
var streamStates = []string{"idle", "connecting", "open", "disconnected"}

// NewCollector creates a Prometheus metrics collector registered on reg.
// A nil reg uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potracker_notifications_total",
				Help: "Total number of change notifications",
			},
			[]string{"kind", "status"},
		),
		clientsConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "potracker_clients_connected",
				Help: "Current number of realtime clients by transport",
			},
			[]string{"transport"},
		),
		clientConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potracker_client_connections_total",
				Help: "Total number of realtime client connections",
			},
			[]string{"transport"},
		),
		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potracker_events_dropped_total",
				Help: "Events skipped because a client buffer was full",
			},
			[]string{"transport"},
		),
		hubClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "potracker_hub_clients",
				Help: "Clients registered with the broadcaster hub",
			},
		),
		framesDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powatch_frames_dispatched_total",
				Help: "Frames routed to a handler",
			},
			[]string{"kind"},
		),
		framesDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powatch_frames_discarded_total",
				Help: "Frames dropped without dispatch",
			},
			[]string{"reason"},
		),
		handlerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powatch_handler_failures_total",
				Help: "Handler invocations that returned an error or panicked",
			},
			[]string{"kind"},
		),
		streamState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powatch_stream_state",
				Help: "1 for the current stream state, 0 otherwise",
			},
			[]string{"state"},
		),
		handlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powatch_handler_duration_seconds",
				Help:    "Handler execution duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		),
	}
}

// RecordNotification counts a change notification
func (c *Collector) RecordNotification(kind string, status string) {
	c.notifications.WithLabelValues(kind, status).Inc()
}

// RecordClientConnected records a new realtime client
func (c *Collector) RecordClientConnected(transport string) {
	c.clientsConnected.WithLabelValues(transport).Inc()
	c.clientConnections.WithLabelValues(transport).Inc()
}

// RecordClientDisconnected records a realtime client going away
func (c *Collector) RecordClientDisconnected(transport string) {
	c.clientsConnected.WithLabelValues(transport).Dec()
}

// RecordEventDropped counts an event skipped for a lagging client
func (c *Collector) RecordEventDropped(transport string) {
	c.eventsDropped.WithLabelValues(transport).Inc()
}

// RecordHubClients sets the number of clients registered with the hub
func (c *Collector) RecordHubClients(count int) {
	c.hubClients.Set(float64(count))
}

// RecordFrameDispatched counts a frame routed to a handler
func (c *Collector) RecordFrameDispatched(kind string) {
	c.framesDispatched.WithLabelValues(kind).Inc()
}

// RecordFrameDiscarded counts a dropped frame
func (c *Collector) RecordFrameDiscarded(reason string) {
	c.framesDiscarded.WithLabelValues(reason).Inc()
}

// RecordHandlerFailure counts a failed handler invocation
func (c *Collector) RecordHandlerFailure(kind string) {
	c.handlerFailures.WithLabelValues(kind).Inc()
}

// RecordStreamState marks state as the current stream state
func (c *Collector) RecordStreamState(state string) {
	for _, s := range streamStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.streamState.WithLabelValues(s).Set(v)
	}
}

// RecordHandlerDuration observes a handler's run time
func (c *Collector) RecordHandlerDuration(kind string, duration time.Duration) {
	c.handlerDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
