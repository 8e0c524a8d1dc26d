package guiding

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// droppedRecords counts records a DTree refused, by reason
	// Labels: "delta", "weight", "pdf", "radiance", "spectrum"
	droppedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guiding_records_dropped_total",
		Help: "Records rejected before reaching a directional tree",
	}, []string{"reason"})

	buildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guiding_builds_total",
		Help: "SD tree builds between passes",
	})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guiding_build_duration_seconds",
		Help:    "Time spent building, subdividing and restructuring the SD tree",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	dTreeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guiding_dtrees",
		Help: "Spatial regions (directional trees) after the last build",
	})

	sTreeNodeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guiding_stree_nodes",
		Help: "Spatial tree nodes after the last build",
	})

	// treeStatistic holds min/max/avg of the per-region statistics
	// Labels: quantity ("dtree_depth", "stree_depth", "mean_radiance", "dtree_nodes", "sample_weight"), stat ("min", "max", "avg")
	treeStatistic = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guiding_tree_statistic",
		Help: "Per-region SD tree statistics after the last build",
	}, []string{"quantity", "stat"})
)

func observeBuild(stats Statistics, elapsed time.Duration) {
	buildsTotal.Inc()
	buildDuration.Observe(elapsed.Seconds())
	dTreeCount.Set(float64(stats.NumDTrees))
	sTreeNodeCount.Set(float64(stats.NumSTreeNodes))

	for quantity, m := range map[string]MinMaxAvg{
		"dtree_depth":   stats.DTreeDepth,
		"stree_depth":   stats.STreeDepth,
		"mean_radiance": stats.MeanRadiance,
		"dtree_nodes":   stats.DTreeNodes,
		"sample_weight": stats.SampleWeight,
	} {
		treeStatistic.WithLabelValues(quantity, "min").Set(m.Min)
		treeStatistic.WithLabelValues(quantity, "max").Set(m.Max)
		treeStatistic.WithLabelValues(quantity, "avg").Set(m.Avg)
	}
}
