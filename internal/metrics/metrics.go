// Package metrics exposes the server's prometheus instrumentation,
// grounded in the promauto package-level-variable style: counters and
// gauges are declared once at package init and registered against the
// default registry, then incremented from wherever the corresponding
// event happens.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "kvstash"
	subsystem = "server"
)

var (
	// RequestsTotal counts every dispatched request, by op and outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Number of requests dispatched, partitioned by op and outcome.",
	}, []string{"op", "outcome"})

	// RequestDuration tracks dispatch latency by op, from request decode
	// to response write.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Request dispatch latency, partitioned by op.",
	}, []string{"op"})

	// DeadBytes reports the writer's current dead-byte count, sampled
	// whenever a compaction cycle finishes.
	DeadBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dead_bytes",
		Help:      "Bytes of records shadowed by newer writes since the last compaction.",
	})

	// CompactionsTotal counts completed compaction cycles.
	CompactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "compactions_total",
		Help:      "Number of compaction cycles completed.",
	})

	// PoolQueueDepth reports how many tasks are waiting for a free worker.
	// It is a gauge rather than a counter because depth can shrink as well
	// as grow; the dispatcher increments it before Submit and decrements
	// it once Submit returns (successfully or not).
	PoolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pool_queue_depth",
		Help:      "Number of tasks waiting for a free pool worker.",
	})
)
