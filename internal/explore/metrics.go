package explore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/cliffbench/internal/common/metrics"
)

var (
	experimentsInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: metrics.MetricPrefix + "experiments_in_flight",
		Help: "Number of experiment groups currently running",
	}, []string{"wave"})

	experimentsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metrics.MetricPrefix + "experiments_finished_total",
		Help: "Number of experiment groups that finished, by wave and result",
	}, []string{"wave", "result"})

	experimentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metrics.MetricPrefix + "experiment_duration_seconds",
		Help:    "Wall-clock duration of a single experiment group",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	}, []string{"wave"})
)
