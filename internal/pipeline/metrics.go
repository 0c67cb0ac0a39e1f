package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks how long each run stage takes.
	// Labels: stage
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsa",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"stage"},
	)

	// UnitsTotal counts summarized table units.
	// Labels: outcome (succeeded, failed, cancelled)
	UnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "pipeline",
			Name:      "units_total",
			Help:      "Total number of table units by summarization outcome",
		},
		[]string{"outcome"},
	)

	// RunsTotal counts finished runs.
	// Labels: outcome (succeeded, no_tables, failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsa",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)
)
