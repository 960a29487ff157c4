package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/G-Research/cliffbench/internal/common/metrics"
)

var probesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: metrics.MetricPrefix + "probes_total",
		Help: "Number of probes run, by verdict",
	},
	[]string{"verdict"},
)

var lastGoodGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: metrics.MetricPrefix + "last_good_load",
		Help: "Best probe value not classified as overloaded, by experiment",
	},
	[]string{"experiment"},
)

func verdictLabel(v Verdict) string {
	if v.Overloaded {
		return "overloaded"
	}
	return "good"
}
