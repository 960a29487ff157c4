package histogram

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
)

// IntervalRecorder collects processing and sojourn samples into doubling windows and writes them out as an interval
// log that Decoder can read back. It is not safe for concurrent use.
type IntervalRecorder struct {
	start     time.Time
	ops       []string
	timelines map[string]*Timeline
}

// NewIntervalRecorder returns a recorder whose windows are relative to start. Operations are written in the order
// given here, which is the order their names must be supplied in when decoding.
func NewIntervalRecorder(start time.Time, ops ...string) *IntervalRecorder {
	r := &IntervalRecorder{
		start:     start,
		ops:       ops,
		timelines: make(map[string]*Timeline, len(ops)),
	}
	for _, op := range ops {
		tl := NewTimeline()
		// Every operation gets at least one window so that names still line up when an operation saw no traffic.
		tl.Window(0)
		r.timelines[op] = tl
	}
	return r
}

// Record adds one sample for op, observed at the given time.
func (r *IntervalRecorder) Record(op string, at time.Time, processing, sojourn time.Duration) error {
	tl, ok := r.timelines[op]
	if !ok {
		return errors.Errorf("unknown operation %s", op)
	}
	elapsed := at.Sub(r.start)
	hs := tl.Window(WindowOf(elapsed))
	if err := hs.Processing.RecordValue(clampMicros(processing)); err != nil {
		return errors.WithStack(err)
	}
	if err := hs.Sojourn.RecordValue(clampMicros(sojourn)); err != nil {
		return errors.WithStack(err)
	}
	if elapsed > tl.LastEnd {
		tl.LastEnd = elapsed
	}
	return nil
}

// Timeline returns the samples recorded so far for op.
func (r *IntervalRecorder) Timeline(op string) *Timeline {
	return r.timelines[op]
}

// WriteTo writes the interval log for a run that lasted elapsed. Timestamps are seconds relative to the base time,
// and each record carries its interval length, which is the layout hdrhistogram.HistogramLogReader parses.
func (r *IntervalRecorder) WriteTo(w io.Writer, elapsed time.Duration) error {
	lw := hdrhistogram.NewHistogramLogWriter(w)
	if err := lw.OutputLogFormatVersion(); err != nil {
		return errors.WithStack(err)
	}
	// OutputBaseTime spells the marker "Basetime" and drops the milliseconds.
	base := fmt.Sprintf("[BaseTime: %.3f (seconds since epoch)]", float64(r.start.UnixMilli())/1000)
	if err := lw.OutputComment(base); err != nil {
		return errors.WithStack(err)
	}
	if err := lw.OutputLegend(); err != nil {
		return errors.WithStack(err)
	}
	for _, op := range r.ops {
		tl := r.timelines[op]
		for k, hs := range tl.Windows {
			start := WindowStart(k)
			end := WindowEnd(k)
			if elapsed < end {
				end = elapsed
			}
			if end < start {
				end = start
			}
			for _, m := range Metrics {
				if err := writeInterval(w, m, start, end-start, hs.Metric(m)); err != nil {
					return errors.WithMessagef(err, "%s window %d of %s", m, k, op)
				}
			}
		}
	}
	return nil
}

// writeInterval writes one record. The log writer's own OutputIntervalHistogram puts the end timestamp where readers
// expect the interval length, so records are formatted here.
func writeInterval(w io.Writer, m Metric, start, length time.Duration, h *hdrhistogram.Histogram) error {
	payload, err := h.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = fmt.Fprintf(w, "Tag=%s,%.3f,%.3f,%.3f,%s\n",
		m, start.Seconds(), length.Seconds(), float64(h.Max())/1000, payload)
	return errors.WithStack(err)
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < LowestTrackable {
		return LowestTrackable
	}
	if us > HighestTrackable {
		return HighestTrackable
	}
	return us
}
