package view

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "view",
		Name:      "recomputes_total",
		Help:      "Number of view recomputes",
	}, []string{"view"})

	recomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opsconsole",
		Subsystem: "view",
		Name:      "recompute_duration_seconds",
		Help:      "Time spent recomputing a view",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"view"})

	viewRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "opsconsole",
		Subsystem: "view",
		Name:      "records",
		Help:      "Records in the latest view snapshot",
	}, []string{"view"})

	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "view",
		Name:      "source_errors_total",
		Help:      "Watched paths that failed to load",
	}, []string{"view", "path"})
)
