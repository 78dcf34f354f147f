package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every flowly collector. A dedicated registry keeps the
// process-wide default one free of engine metrics when embedded.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Event bus metrics.
var (
	eventsPublished = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flowly_events_published_total",
		Help: "Number of events published on the notification bus",
	}, []string{"event"})

	listenerFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flowly_listener_failures_total",
		Help: "Number of event handlers that returned an error or panicked",
	}, []string{"event"})
)

// Store metrics.
var (
	mutationsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "flowly_mutations_rejected_total",
		Help: "Number of store mutations rejected by validation",
	}, []string{"operation", "reason"})

	nodesGauge = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flowly_nodes",
		Help: "Number of nodes in the observed graph",
	})

	connectionsGauge = factory.NewGauge(prometheus.GaugeOpts{
		Name: "flowly_connections",
		Help: "Number of connections in the observed graph",
	})
)

// Persistence metrics.
var checkpointsSaved = factory.NewCounterVec(prometheus.CounterOpts{
	Name: "flowly_checkpoints_saved_total",
	Help: "Number of flow checkpoints written",
}, []string{"backend"})

// Event bus helpers
func EventPublished(event string) { eventsPublished.WithLabelValues(event).Inc() }
func ListenerFailed(event string) { listenerFailures.WithLabelValues(event).Inc() }

// Store helpers
func MutationRejected(operation, reason string) {
	mutationsRejected.WithLabelValues(operation, reason).Inc()
}
func SetGraphSize(nodes, connections int) {
	nodesGauge.Set(float64(nodes))
	connectionsGauge.Set(float64(connections))
}

// Persistence helpers
func CheckpointSaved(backend string) { checkpointsSaved.WithLabelValues(backend).Inc() }
