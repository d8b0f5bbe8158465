package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunksAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "documaster",
		Subsystem: "vectorstore",
		Name:      "chunks_added_total",
		Help:      "Chunks written to the vector store.",
	}, []string{"collection"})

	chunksDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "documaster",
		Subsystem: "vectorstore",
		Name:      "chunks_deleted_total",
		Help:      "Chunks removed from the vector store.",
	}, []string{"collection"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "documaster",
		Subsystem: "vectorstore",
		Name:      "errors_total",
		Help:      "Failed vector store operations.",
	}, []string{"op"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "documaster",
		Subsystem: "vectorstore",
		Name:      "search_duration_seconds",
		Help:      "Latency of similarity searches, including query embedding.",
		Buckets:   prometheus.DefBuckets,
	})

	searchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "documaster",
		Subsystem: "vectorstore",
		Name:      "search_results",
		Help:      "Chunks returned per search after thresholding.",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
	})
)
