package histogram

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
)

const (
	// Matched case-insensitively: hdrhistogram-go writes "#[Basetime:".
	baseTimePrefix = "#[basetime:"
	legendPrefix   = `"StartTimestamp"`
	// Base times beyond this many seconds do not fit in a time.Duration of nanoseconds.
	maxSeconds = float64(math.MaxInt64 / int64(time.Second))
)

// Decoder reads an interval log one operation at a time.
//
// A log holds, for each operation in turn, a processing and a sojourn histogram per window in increasing window
// order. Nothing in the log marks where one operation ends, so the decoder holds back the histogram that turns out to
// be the first window of the next operation and hands it out on the following call.
type Decoder struct {
	reader   *hdrhistogram.HistogramLogReader
	index    int
	baseTime time.Time
	stash    *hdrhistogram.Histogram
}

// NewDecoder reads up to and including the base time marker of r. The records that follow are read with the
// hdrhistogram log reader, which sees no base time and so reports their timestamps relative to it.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReader(r)
	line := 0
	for {
		text, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.WithStack(err)
		}
		line++
		trimmed := strings.TrimSpace(text)
		switch {
		case strings.HasPrefix(strings.ToLower(trimmed), baseTimePrefix):
			base, perr := parseBaseTime(trimmed)
			if perr != nil {
				return nil, errors.Wrapf(ErrMalformed, "line %d: %s", line, perr)
			}
			// The log reader drops a final line that lacks a newline.
			rest := io.MultiReader(br, strings.NewReader("\n"))
			return &Decoder{reader: hdrhistogram.NewHistogramLogReader(rest), baseTime: base}, nil
		case trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, legendPrefix):
		default:
			return nil, errors.Wrapf(ErrMissingBaseTime, "line %d holds data before any base time", line)
		}
		if err == io.EOF {
			return nil, errors.WithStack(ErrMissingBaseTime)
		}
	}
}

// BaseTime is the wall-clock time the log's timestamps are relative to.
func (d *Decoder) BaseTime() time.Time {
	return d.baseTime
}

// Operation decodes the next operation's windows. It returns io.EOF when the log holds no further histograms.
func (d *Decoder) Operation() (*Timeline, error) {
	tl := NewTimeline()
	for i := 0; ; i++ {
		h, err := d.next()
		if err == io.EOF {
			if i == 0 {
				return nil, io.EOF
			}
			return tl, nil
		}
		if err != nil {
			return nil, err
		}
		// A zero-start histogram where a new processing/sojourn pair would begin is window 0 of the next operation.
		if h.StartTimeMs() == 0 && i >= 2 && i%2 == 0 {
			d.stash = h
			d.index--
			return tl, nil
		}
		if err := d.add(tl, i/2, h); err != nil {
			return nil, err
		}
	}
}

// Finish checks that every histogram in the log has been consumed.
func (d *Decoder) Finish() error {
	_, err := d.next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(ErrTrailingData, "histogram %d", d.index)
}

func (d *Decoder) add(tl *Timeline, window int, h *hdrhistogram.Histogram) error {
	if want := WindowStart(window).Milliseconds(); h.StartTimeMs() != want {
		return errors.Wrapf(ErrMalformed, "histogram %d: window %d should start at %dms but starts at %dms", d.index, window, want, h.StartTimeMs())
	}
	// Compared in milliseconds, before conversion, so that absurd lengths cannot overflow into range.
	if h.EndTimeMs() < h.StartTimeMs() || h.EndTimeMs() > WindowEnd(window).Milliseconds() {
		return errors.Wrapf(ErrMalformed, "histogram %d: window %d cannot end at %dms", d.index, window, h.EndTimeMs())
	}
	end := time.Duration(h.EndTimeMs()) * time.Millisecond
	hs := tl.Window(window)
	var err error
	switch Metric(h.Tag()) {
	case Processing:
		err = mergeInto(hs.Processing, h)
	case Sojourn:
		err = mergeInto(hs.Sojourn, h)
	default:
		return errors.Wrapf(ErrMalformed, "histogram %d: unexpected histogram tag %q", d.index, h.Tag())
	}
	if err != nil {
		return errors.WithMessagef(err, "histogram %d", d.index)
	}
	if end > tl.LastEnd {
		tl.LastEnd = end
	}
	return nil
}

// next returns the stashed histogram if there is one, and otherwise the next histogram in the log.
func (d *Decoder) next() (*hdrhistogram.Histogram, error) {
	if d.stash != nil {
		h := d.stash
		d.stash = nil
		d.index++
		return h, nil
	}
	h, err := d.read()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "histogram %d: %s", d.index+1, err)
	}
	if h == nil {
		return nil, io.EOF
	}
	d.index++
	return h, nil
}

// read guards against the log reader, which panics on a tag that is not followed by any fields.
func (d *Decoder) read() (h *hdrhistogram.Histogram, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, errors.Errorf("unreadable record: %v", r)
		}
	}()
	return d.reader.NextIntervalHistogram()
}

// parseBaseTime parses "#[BaseTime: 1601234567.890 (seconds since epoch)]".
func parseBaseTime(line string) (time.Time, error) {
	rest := strings.TrimSpace(line[len(baseTimePrefix):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return time.Time{}, errors.New("empty base time")
	}
	secs, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "]"), 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "base time")
	}
	if secs < 0 || secs > maxSeconds || math.IsNaN(secs) {
		return time.Time{}, errors.Errorf("base time %s is out of range", fields[0])
	}
	return time.UnixMilli(int64(math.Round(secs * 1000))), nil
}
