// Package metrics declares the Prometheus collectors shared by the
// scheduler, reactor, and networking component, and the registration step
// that turns a duplicate registration into an ordinary error for the caller
// to treat as fatal.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// QueueDepth reports the current item count of each scheduler queue kind.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridgeback_scheduler_queue_depth",
			Help: "Number of items currently queued, by queue kind",
		},
		[]string{"queue_kind"},
	)

	// EventsPopped counts items popped from the scheduler, by queue kind.
	EventsPopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeback_scheduler_events_popped_total",
			Help: "Total number of items popped from the scheduler, by queue kind",
		},
		[]string{"queue_kind"},
	)

	// DispatchLatency measures how long a single dispatch_event call took.
	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridgeback_reactor_dispatch_latency_seconds",
			Help:    "Time taken to dispatch a single event to its component",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component"},
	)

	// ComponentsConstructed counts successful component constructions.
	ComponentsConstructed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridgeback_reactor_components_constructed_total",
			Help: "Total number of components successfully constructed",
		},
	)

	// ConnectionsEstablished counts successfully negotiated peer connections.
	ConnectionsEstablished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeback_net_connections_established_total",
			Help: "Total number of peer connections successfully established",
		},
		[]string{"role"},
	)

	// ConnectionsFailed counts connection attempts that did not establish.
	ConnectionsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeback_net_connections_failed_total",
			Help: "Total number of connection attempts that failed, by reason",
		},
		[]string{"reason"},
	)

	// OutboundQueueLength is the current length of a peer's outbound mailbox.
	OutboundQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridgeback_net_outbound_queue_length",
			Help: "Current number of messages queued for a peer's sender task",
		},
		[]string{"peer_id"},
	)

	// OutboundMessagesDropped counts messages dropped due to a full bounded
	// outbound mailbox (the drop-oldest backpressure policy).
	OutboundMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeback_net_outbound_messages_dropped_total",
			Help: "Total number of outbound messages dropped due to mailbox backpressure",
		},
		[]string{"peer_id"},
	)

	// HandshakeDuration measures handshake negotiation latency.
	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeback_net_handshake_duration_seconds",
			Help:    "Time taken to negotiate a handshake with a peer",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Collectors lists every collector declared in this package, in
// registration order.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		QueueDepth,
		EventsPopped,
		DispatchLatency,
		ComponentsConstructed,
		ConnectionsEstablished,
		ConnectionsFailed,
		OutboundQueueLength,
		OutboundMessagesDropped,
		HandshakeDuration,
	}
}

// Register registers every collector against reg. A duplicate registration
// (e.g. constructing the reactor twice against the same registry) is
// reported as an error rather than panicking, so the caller can fail
// construction with it.
func Register(reg *prometheus.Registry) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// Timer measures an operation's duration for later observation against a
// histogram, mirroring the teacher's metrics.NewTimer/ObserveDuration
// pattern used around scheduling cycles.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time since NewTimer against obs.
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(time.Since(t.start).Seconds())
}
