package scene

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rebuildTotal counts rebuilds by mode ("full" or "incremental").
	rebuildTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_scene_rebuild_total",
		Help: "Total scene rebuilds by mode",
	}, []string{"mode"})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strata_scene_rebuild_duration_seconds",
		Help:    "Scene rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})

	renderablesLive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "strata_scene_renderables",
		Help: "Renderables currently materialized per group",
	}, []string{"group"})

	barsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strata_scene_bars_skipped_total",
		Help: "Milestones skipped for lacking an end time and duration",
	})
)
