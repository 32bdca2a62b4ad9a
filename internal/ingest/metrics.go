package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// documentsTotal counts documents by outcome.
	// Labels: outcome (indexed, embedding_failed, projection_failed, duplicate)
	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productqa",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents processed by ingestion, by outcome",
		},
		[]string{"outcome"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "productqa",
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by final state",
		},
		[]string{"state"},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "productqa",
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
