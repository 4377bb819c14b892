package embeddings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ait",
			Subsystem: "embeddings",
			Name:      "generation_duration_seconds",
			Help:      "Duration of embedding generation calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model", "operation", "result"},
	)

	textsEmbedded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ait",
			Subsystem: "embeddings",
			Name:      "texts_embedded_total",
			Help:      "Total number of texts embedded",
		},
		[]string{"model", "operation"},
	)
)

func observeGeneration(model, operation string, count int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	generationDuration.WithLabelValues(model, operation, result).Observe(elapsed.Seconds())
	if err == nil {
		textsEmbedded.WithLabelValues(model, operation).Add(float64(count))
	}
}
