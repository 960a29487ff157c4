// Package experiment runs one experiment group: it pulls probe values from a searcher, measures each one and feeds
// overload verdicts back until the searcher is exhausted.
package experiment

import (
	"github.com/pkg/errors"

	"github.com/G-Research/cliffbench/internal/cliff"
	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/explore"
)

// Probe measures the system under test at a single load.
//
// Conditions that mean the system could not cope (failed priming, crashed clients, missing output) should be reported
// as an overloaded Verdict. An error is reserved for problems that make the rest of the experiment meaningless.
type Probe func(ctx *benchctx.Context, load uint64) (Verdict, error)

// ProbeObserver is told about every probe once it has been classified.
type ProbeObserver func(load uint64, leading bool, v Verdict)

type DriveOptions struct {
	// Name labels the experiment in logs and metrics.
	Name string
	// Leading values are measured before the search starts, for reference. Unlimited memory (zero) is the typical
	// example. Their verdicts are neither fed to the searcher nor considered for the result.
	Leading []uint64
	Sense   explore.Sense
	// OnProbe, if set, is called after each probe.
	OnProbe ProbeObserver
}

// Drive runs probes until searcher is exhausted and returns the best value that was not overloaded, or zero if there
// was none. Cancellation is checked before every probe; when ctx is done Drive returns what it has so far without
// error.
func Drive(ctx *benchctx.Context, searcher cliff.Searcher, probe Probe, opts DriveOptions) (uint64, error) {
	if opts.Name != "" {
		ctx = benchctx.WithLogField(ctx, "experiment", opts.Name)
	}

	for _, load := range opts.Leading {
		if benchctx.Cancelled(ctx) {
			ctx.Log.Info("exiting as instructed")
			return 0, nil
		}
		v, err := runProbe(ctx, probe, load, true, opts)
		if err != nil {
			return 0, err
		}
		ctx.Log.WithField("load", load).Infof("reference probe finished: %s", describe(v))
	}

	var lastGood uint64
	found := false
	for {
		load, ok := searcher.Next()
		if !ok {
			break
		}
		if benchctx.Cancelled(ctx) {
			ctx.Log.Info("exiting as instructed")
			break
		}
		v, err := runProbe(ctx, probe, load, false, opts)
		if err != nil {
			return lastGood, err
		}
		log := ctx.Log.WithField("load", load)
		if v.Overloaded {
			log.Warnf("probe overloaded: %s", describe(v))
			searcher.Overloaded()
			continue
		}
		log.Infof("probe passed: %s", describe(v))
		if !found {
			lastGood = load
			found = true
		} else {
			lastGood = opts.Sense.Better(load, lastGood)
		}
		if opts.Name != "" {
			lastGoodGauge.WithLabelValues(opts.Name).Set(float64(lastGood))
		}
	}
	return lastGood, nil
}

func runProbe(ctx *benchctx.Context, probe Probe, load uint64, leading bool, opts DriveOptions) (Verdict, error) {
	v, err := probe(benchctx.WithLogField(ctx, "load", load), load)
	if err != nil {
		return v, errors.WithMessagef(err, "probe at %d", load)
	}
	v.Telemetry.Load = load
	probesTotal.WithLabelValues(verdictLabel(v)).Inc()
	if opts.OnProbe != nil {
		opts.OnProbe(load, leading, v)
	}
	return v, nil
}

func describe(v Verdict) string {
	t := v.Telemetry
	s := "median sojourn " + t.MedianSojourn.String() + ", median processing " + t.MedianProcessing.String()
	for _, r := range v.Reasons {
		s += "; " + r
	}
	return s
}
