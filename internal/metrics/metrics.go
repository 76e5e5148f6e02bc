// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PendingMutations is the current depth of the offline mutation queue.
	PendingMutations = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pending_mutations", Help: "Visit-outcome mutations awaiting delivery."},
	)
	// MutationReplays counts replay attempts by outcome (delivered, retained).
	MutationReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mutation_replays_total", Help: "Mutation replay attempts by outcome."},
		[]string{"outcome"},
	)
	// QueueDrains counts drain cycles by trigger (reconnect, worker, manual).
	QueueDrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "queue_drains_total", Help: "Offline queue drain cycles by trigger."},
		[]string{"trigger"},
	)

	// OptimizerFallbacks counts routes ordered by the local heuristic
	// after a remote failure.
	OptimizerFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "optimizer_fallbacks_total", Help: "Route plans that fell back to the local heuristic."},
	)
	// RemoteOptimizeDuration tracks remote optimization call latency.
	RemoteOptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "remote_optimize_duration_seconds", Help: "Remote waypoint optimization latency.", Buckets: prometheus.DefBuckets},
	)

	// ConnectivityTransitions counts observed online/offline flips.
	ConnectivityTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "connectivity_transitions_total", Help: "Connectivity transitions by direction."},
		[]string{"direction"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry exactly once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PendingMutations)
		Registry.MustRegister(MutationReplays)
		Registry.MustRegister(QueueDrains)
		Registry.MustRegister(OptimizerFallbacks)
		Registry.MustRegister(RemoteOptimizeDuration)
		Registry.MustRegister(ConnectivityTransitions)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
