package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks index operation latency.
	// Labels: backend (chromem, qdrant), operation (upsert, query, count)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "productqa",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// OperationErrors counts failed index operations.
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productqa",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Total vector index operation failures",
		},
		[]string{"backend", "operation"},
	)

	// Entries reports the number of entries held by the index.
	Entries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "productqa",
			Subsystem: "vectorstore",
			Name:      "entries",
			Help:      "Number of entries in the vector index",
		},
		[]string{"backend"},
	)
)

func observe(backend, operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(backend, operation).Inc()
	}
}
