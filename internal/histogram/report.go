package histogram

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AllOperations names the timeline synthesized from every other operation.
const AllOperations = "all"

var (
	timelineHeader  = []string{"op", "until", "metric", "mean", "median", "p25", "p90", "p95", "p99", "max"}
	collapsedHeader = []string{"op", "metric", "pct", "time"}
	// Fractions of the distribution reported in collapsed mode.
	collapsedQuantiles = []float64{0.25, 0.5, 0.75, 1.0}
)

// Report holds one timeline per operation name.
type Report map[string]*Timeline

// Add merges tl into the timeline already held for op, if any.
func (r Report) Add(op string, tl *Timeline) error {
	existing, ok := r[op]
	if !ok {
		r[op] = tl
		return nil
	}
	return errors.WithMessagef(existing.Merge(tl), "operation %s", op)
}

// Operations returns the operation names in the order they are reported.
func (r Report) Operations() []string {
	ops := maps.Keys(r)
	slices.Sort(ops)
	return ops
}

// WithAll returns a copy of r that also contains the AllOperations timeline.
func (r Report) WithAll() (Report, error) {
	out := make(Report, len(r)+1)
	var all *Timeline
	for _, op := range r.Operations() {
		tl := r[op]
		out[op] = tl
		if op == AllOperations {
			continue
		}
		if all == nil {
			all = tl.Clone()
			continue
		}
		if err := all.Merge(tl); err != nil {
			return nil, errors.WithMessagef(err, "merging %s into %s", op, AllOperations)
		}
	}
	if all != nil {
		out[AllOperations] = all
	}
	return out, nil
}

// WriteTimeline writes one row per operation, window and metric that holds samples.
func WriteTimeline(w io.Writer, r Report, log *logrus.Entry) error {
	tw := &tsvWriter{w: w}
	tw.row(timelineHeader...)
	for _, op := range r.Operations() {
		tl := r[op]
		for k, hs := range tl.Windows {
			until := strconv.FormatInt(int64(tl.Until(k)/time.Second), 10)
			for _, m := range Metrics {
				h := hs.Metric(m)
				if h.TotalCount() == 0 {
					log.Infof("skipping empty histogram: %s %s", m, op)
					continue
				}
				tw.row(
					op, until, string(m),
					formatMillis(h.Mean()),
					quantileMillis(h, 0.5),
					quantileMillis(h, 0.25),
					quantileMillis(h, 0.90),
					quantileMillis(h, 0.95),
					quantileMillis(h, 0.99),
					formatMillis(float64(h.Max())),
				)
			}
		}
	}
	return tw.err
}

// WriteCollapsed writes, per operation and metric, the latency reached at each quarter of the distribution.
func WriteCollapsed(w io.Writer, r Report, log *logrus.Entry) error {
	tw := &tsvWriter{w: w}
	tw.row(collapsedHeader...)
	for _, op := range r.Operations() {
		hs, err := r[op].Collapse()
		if err != nil {
			return errors.WithMessagef(err, "operation %s", op)
		}
		for _, m := range Metrics {
			h := hs.Metric(m)
			if h.TotalCount() == 0 {
				log.Infof("skipping empty histogram: %s %s", m, op)
				continue
			}
			for _, q := range collapsedQuantiles {
				tw.row(op, string(m), strconv.FormatFloat(q, 'f', -1, 64), quantileMillis(h, q))
			}
		}
	}
	return tw.err
}

func quantileMillis(h *hdrhistogram.Histogram, q float64) string {
	return formatMillis(float64(ValueAtQuantile(h, q)))
}

// ValueAtQuantile returns the highest value equivalent to the sample at fraction q of the distribution. At least one
// sample is always covered, so small histograms report their lowest sample rather than zero.
func ValueAtQuantile(h *hdrhistogram.Histogram, q float64) int64 {
	target := int64(math.Ceil(q * float64(h.TotalCount())))
	if target < 1 {
		target = 1
	}
	var seen int64
	for _, bar := range h.Distribution() {
		seen += bar.Count
		if seen >= target {
			return bar.To
		}
	}
	return h.Max()
}

// formatMillis converts microseconds to milliseconds.
func formatMillis(us float64) string {
	return strconv.FormatFloat(us/1000, 'f', -1, 64)
}

// tsvWriter writes tab separated rows and remembers the first error.
type tsvWriter struct {
	w   io.Writer
	err error
}

func (t *tsvWriter) row(fields ...string) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintln(t.w, strings.Join(fields, "\t"))
}
