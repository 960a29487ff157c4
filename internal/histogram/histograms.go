// Package histogram turns interval logs of latency histograms into per-operation timelines and renders them as
// tab-separated reports.
//
// Every operation is recorded as a series of logarithmically sized windows ([0,1s), [1,2s), [2,4s), ...), each holding
// one histogram of processing time and one of sojourn time, in microseconds.
package histogram

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
)

// Bounds shared by every histogram we record or read, in microseconds.
const (
	LowestTrackable    int64 = 1
	HighestTrackable   int64 = 60_000_000
	SignificantFigures       = 3
)

var (
	ErrBoundsMismatch  = errors.New("histograms have different bounds")
	ErrMalformed       = errors.New("malformed interval log")
	ErrMissingBaseTime = errors.New("interval log has no base time")
	ErrTrailingData    = errors.New("interval log has trailing histograms")
	ErrNoHistograms    = errors.New("no histograms found")
)

type Metric string

const (
	Processing Metric = "processing"
	Sojourn    Metric = "sojourn"
)

// Metrics lists the recorded metrics in the order they appear in logs and reports.
var Metrics = []Metric{Processing, Sojourn}

// Histograms is the pair of latency distributions recorded for one window.
type Histograms struct {
	Processing *hdrhistogram.Histogram
	Sojourn    *hdrhistogram.Histogram
}

func NewHistograms() *Histograms {
	return &Histograms{
		Processing: newHistogram(),
		Sojourn:    newHistogram(),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(LowestTrackable, HighestTrackable, SignificantFigures)
}

func (h *Histograms) Metric(m Metric) *hdrhistogram.Histogram {
	if m == Sojourn {
		return h.Sojourn
	}
	return h.Processing
}

// Merge adds the counts of other into h.
func (h *Histograms) Merge(other *Histograms) error {
	if err := mergeInto(h.Processing, other.Processing); err != nil {
		return errors.WithMessage(err, string(Processing))
	}
	if err := mergeInto(h.Sojourn, other.Sojourn); err != nil {
		return errors.WithMessage(err, string(Sojourn))
	}
	return nil
}

func (h *Histograms) Clone() *Histograms {
	return &Histograms{
		Processing: clone(h.Processing),
		Sojourn:    clone(h.Sojourn),
	}
}

func (h *Histograms) Empty() bool {
	return h.Processing.TotalCount() == 0 && h.Sojourn.TotalCount() == 0
}

func mergeInto(dst, src *hdrhistogram.Histogram) error {
	if !sameBounds(dst, src) {
		return errors.Wrapf(
			ErrBoundsMismatch,
			"cannot merge [%d, %d]/%d into [%d, %d]/%d",
			src.LowestTrackableValue(), src.HighestTrackableValue(), src.SignificantFigures(),
			dst.LowestTrackableValue(), dst.HighestTrackableValue(), dst.SignificantFigures(),
		)
	}
	if dropped := dst.Merge(src); dropped > 0 {
		return errors.Errorf("dropped %d values while merging histograms", dropped)
	}
	return nil
}

func sameBounds(a, b *hdrhistogram.Histogram) bool {
	return a.LowestTrackableValue() == b.LowestTrackableValue() &&
		a.HighestTrackableValue() == b.HighestTrackableValue() &&
		a.SignificantFigures() == b.SignificantFigures()
}

func clone(h *hdrhistogram.Histogram) *hdrhistogram.Histogram {
	c := hdrhistogram.New(h.LowestTrackableValue(), h.HighestTrackableValue(), int(h.SignificantFigures()))
	c.Merge(h)
	return c
}
