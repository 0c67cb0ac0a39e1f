package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts model calls.
	// Labels: model, outcome (success, error, empty, timeout)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of model call attempts by outcome",
		},
		[]string{"model", "outcome"},
	)

	// RequestDuration tracks the latency of individual attempts.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of model call attempts in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	// RetriesTotal counts attempts beyond the first.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Total number of retried model calls",
		},
		[]string{"model"},
	)
)
