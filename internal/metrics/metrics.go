package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rental_escrow"

// Metrics is the set of escrow counters. Each instance owns its registry so
// tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Operations         *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	SchedulingFailures prometheus.Counter
	CrankedTasks       *prometheus.CounterVec
	SweptRentals       prometheus.Counter
	PrunedTasks        prometheus.Counter
	QueueDepth         prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Submitted instructions by outcome",
		}, []string{"instruction", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time to apply an instruction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),
		SchedulingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deadline",
			Name:      "scheduling_failures_total",
			Help:      "Rentals whose end could not be scheduled",
		}),
		CrankedTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cranker",
			Name:      "tasks_total",
			Help:      "Due tasks processed by result",
		}, []string{"result"}),
		SweptRentals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cranker",
			Name:      "swept_rentals_total",
			Help:      "Expired rentals ended by the fallback sweep",
		}),
		PrunedTasks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cranker",
			Name:      "pruned_tasks_total",
			Help:      "Stale tasks dropped from the queue",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cranker",
			Name:      "queue_depth",
			Help:      "Tasks waiting in the queue",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
