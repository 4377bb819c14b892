package indexer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aitd",
			Subsystem: "indexer",
			Name:      "run_duration_seconds",
			Help:      "Duration of indexing runs.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tag"},
	)

	chunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aitd",
			Subsystem: "indexer",
			Name:      "chunks_processed_total",
			Help:      "Chunks handled by indexing runs, by outcome.",
		},
		[]string{"tag", "outcome"},
	)
)

func observeRun(tag string, res Result, elapsed time.Duration) {
	runDuration.WithLabelValues(tag).Observe(elapsed.Seconds())
	chunksProcessed.WithLabelValues(tag, "added").Add(float64(res.NumAdded))
	chunksProcessed.WithLabelValues(tag, "updated").Add(float64(res.NumUpdated))
	chunksProcessed.WithLabelValues(tag, "skipped").Add(float64(res.NumSkipped))
	chunksProcessed.WithLabelValues(tag, "deleted").Add(float64(res.NumDeleted))
}
