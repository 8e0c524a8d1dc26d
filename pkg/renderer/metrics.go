package renderer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pathsTraced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guiding_paths_traced_total",
		Help: "Paths traced by training passes",
	})

	verticesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guiding_vertices_total",
		Help: "Path vertices handed to the SD tree",
	})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guiding_pass_duration_seconds",
		Help:    "Wall time of a training pass including the build",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	currentPass = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "guiding_current_pass",
		Help: "Last completed training pass",
	})
)

func observePass(stats PassStats) {
	pathsTraced.Add(float64(stats.Paths))
	verticesRecorded.Add(float64(stats.Vertices))
	passDuration.Observe(stats.Elapsed.Seconds())
	currentPass.Set(float64(stats.PassNumber))
}
