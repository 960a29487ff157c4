package histogram

import (
	"math/bits"
	"time"

	"github.com/pkg/errors"
)

// WindowStart is the offset from the start of a run at which window k begins.
func WindowStart(k int) time.Duration {
	return time.Duration((1<<k)>>1) * time.Second
}

// WindowEnd is the offset from the start of a run at which window k ends.
func WindowEnd(k int) time.Duration {
	return time.Duration(1<<k) * time.Second
}

// WindowOf returns the index of the window containing the given offset.
func WindowOf(elapsed time.Duration) int {
	if elapsed < 0 {
		return 0
	}
	return bits.Len64(uint64(elapsed / time.Second))
}

// Timeline is the windowed history of one operation, possibly merged from several sources.
type Timeline struct {
	Windows []*Histograms
	// LastEnd is the latest window end observed in any source.
	LastEnd time.Duration
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Window returns the histograms of window k, growing the timeline if needed.
func (t *Timeline) Window(k int) *Histograms {
	for len(t.Windows) <= k {
		t.Windows = append(t.Windows, NewHistograms())
	}
	return t.Windows[k]
}

// Merge adds other into t window by window.
func (t *Timeline) Merge(other *Timeline) error {
	for k, hs := range other.Windows {
		if k < len(t.Windows) {
			if err := t.Windows[k].Merge(hs); err != nil {
				return errors.WithMessagef(err, "window %d", k)
			}
		} else {
			t.Windows = append(t.Windows, hs.Clone())
		}
	}
	if other.LastEnd > t.LastEnd {
		t.LastEnd = other.LastEnd
	}
	return nil
}

func (t *Timeline) Clone() *Timeline {
	c := &Timeline{LastEnd: t.LastEnd, Windows: make([]*Histograms, len(t.Windows))}
	for k, hs := range t.Windows {
		c.Windows[k] = hs.Clone()
	}
	return c
}

// Collapse merges every window into a single pair of histograms.
func (t *Timeline) Collapse() (*Histograms, error) {
	all := NewHistograms()
	for k, hs := range t.Windows {
		if err := all.Merge(hs); err != nil {
			return nil, errors.WithMessagef(err, "window %d", k)
		}
	}
	return all, nil
}

// Until is the effective end of window k: the window's nominal end, or the end of the run if that came first.
func (t *Timeline) Until(k int) time.Duration {
	if end := WindowEnd(k); end < t.LastEnd {
		return end
	}
	return t.LastEnd
}
