package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ait",
		Subsystem: "vectorstore",
		Name:      "operations_total",
		Help:      "Total vector store operations by backend and kind",
	},
	[]string{"backend", "operation"},
)

var pointsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ait",
		Subsystem: "vectorstore",
		Name:      "points_processed_total",
		Help:      "Total points written, deleted, or returned by operation",
	},
	[]string{"backend", "operation"},
)

func observeOperation(backend, operation string, count int) {
	operationsTotal.WithLabelValues(backend, operation).Inc()
	pointsProcessed.WithLabelValues(backend, operation).Add(float64(count))
}
