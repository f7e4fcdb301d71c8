// Package metrics exposes ishmem's runtime counters through
// prometheus/client_golang instead of hand-rolled atomic counters,
// using the ecosystem's standard collector types — the library still
// counts the same things (ops, bytes, queue depth, latency), it just
// publishes them the way a production Go service does.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of collectors the proxy updates. Construct once per process via NewMetrics and register it
// with a prometheus.Registerer (or leave unregistered for tests).
type Metrics struct {
	Ops       *prometheus.CounterVec // labels: op, type
	Bytes     *prometheus.CounterVec // labels: op
	Errors    *prometheus.CounterVec // labels: op
	QueueDepth prometheus.Gauge
	Latency   *prometheus.HistogramVec // labels: op
}

// NewMetrics constructs a fresh, unregistered Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ishmem",
			Name:      "ops_total",
			Help:      "Number of completed ring requests, by op and element type.",
		}, []string{"op", "type"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ishmem",
			Name:      "bytes_total",
			Help:      "Bytes moved by point-to-point RMA requests the proxy dispatched, by op.",
		}, []string{"op"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ishmem",
			Name:      "errors_total",
			Help:      "Requests that completed with a non-zero status, by op.",
		}, []string{"op"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ishmem",
			Name:      "ring_queue_depth",
			Help:      "Ring slots reserved but not yet polled by the proxy, sampled after each dispatch.",
		}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ishmem",
			Name:      "op_latency_seconds",
			Help:      "Time the proxy spent in the request's handler, by op.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 8),
		}, []string{"op"}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate-registration error the way prometheus's own MustRegister
// does (init-time only; never called on a hot path).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.Ops, m.Bytes, m.Errors, m.QueueDepth, m.Latency)
}
