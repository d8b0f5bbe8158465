package qa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	questionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "documaster",
		Subsystem: "qa",
		Name:      "questions_total",
		Help:      "Questions handled, by outcome (answered, no_evidence, error).",
	}, []string{"outcome"})

	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "documaster",
		Subsystem: "qa",
		Name:      "inference_duration_seconds",
		Help:      "Latency of backend completion calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "documaster",
		Subsystem: "qa",
		Name:      "evaluations_total",
		Help:      "Answer evaluations, by verdict.",
	}, []string{"verdict"})
)
