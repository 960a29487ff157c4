// Package campaign runs a whole campaign: it searches every experiment group for its cliff, re-measures the groups at
// each other's boundaries, and records everything in the results database and a summary file.
package campaign

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	"k8s.io/utils/clock"

	"github.com/G-Research/cliffbench/internal/campaign/configuration"
	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/common/logging"
	"github.com/G-Research/cliffbench/internal/common/metrics"
	"github.com/G-Research/cliffbench/internal/common/task"
	"github.com/G-Research/cliffbench/internal/common/util"
	"github.com/G-Research/cliffbench/internal/experiment"
	"github.com/G-Research/cliffbench/internal/experiment/httpload"
	"github.com/G-Research/cliffbench/internal/explore"
	"github.com/G-Research/cliffbench/internal/results"
)

const (
	SummaryFile = "summary.yaml"

	stopTimeout = 5 * time.Second
)

// ProbeFactory builds the probe used to measure one group in one wave.
type ProbeFactory func(w httpload.Workload, wave explore.Wave) experiment.Probe

type Option func(*Campaign)

// WithProbeFactory replaces the vegeta runner, typically with a simulated system under test.
func WithProbeFactory(f ProbeFactory) Option {
	return func(c *Campaign) {
		c.probeFor = f
	}
}

// WithClock sets the clock that paces progress reports.
func WithClock(clk clock.Clock) Option {
	return func(c *Campaign) {
		c.clock = clk
	}
}

// Campaign orchestrates a campaign. It opens the results database, runs every group through the explore scheduler,
// and writes the outcome.
type Campaign struct {
	config   configuration.CampaignConfig
	sense    explore.Sense
	probeFor ProbeFactory
	clock    clock.Clock
}

// New creates a Campaign from a validated configuration.
func New(config configuration.CampaignConfig, opts ...Option) *Campaign {
	c := &Campaign{
		config: config,
		sense:  config.SenseValue(),
		clock:  clock.RealClock{},
	}
	c.probeFor = c.httpProbe
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run runs a campaign with the default vegeta runner.
func Run(ctx *benchctx.Context, config configuration.CampaignConfig) (*Summary, error) {
	return New(config).Run(ctx)
}

// Run executes the campaign. It returns a summary whenever the run got as far as starting, including when it was
// cancelled or an experiment failed, in which case the error is returned too.
//
// Cancelling ctx stops new probes and backfill; what was measured so far is still recorded.
func (c *Campaign) Run(ctx *benchctx.Context) (*Summary, error) {
	ctx = benchctx.WithLogField(ctx, "campaign", c.config.Name)
	ctx.Log.Debugf("effective configuration: %s", litter.Sdump(c.config))

	// Records must reach the database even when the campaign was cancelled.
	recordCtx := context.WithoutCancel(ctx)

	store, err := results.Open(c.config.ResultsPath)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(ctx.Log, "results database", store)
	if err := store.Setup(recordCtx); err != nil {
		return nil, err
	}
	runID, err := store.StartRun(recordCtx, c.config.Name, c.sense.String())
	if err != nil {
		return nil, err
	}
	ctx = benchctx.WithLogField(ctx, "run", runID)
	ctx.Log.Infof("starting campaign with %d groups; results go to %s", len(c.config.Groups), c.config.ResultsPath)

	tracker := newProgress(c.clock, c.sense)
	tasks := task.NewBackgroundTaskManager(metrics.MetricPrefix).WithClock(c.clock)
	if err := tasks.Register(func() { tracker.report(ctx.Log) }, c.config.ProgressInterval, "campaign_progress"); err != nil {
		return nil, err
	}
	defer func() {
		if tasks.StopAll(stopTimeout) {
			ctx.Log.Warn("progress reporting did not stop in time")
		}
	}()

	run := func(ctx *benchctx.Context, w httpload.Workload, loads []uint64) (uint64, error) {
		wave := explore.Primary
		if loads != nil {
			wave = explore.Secondary
		}
		searcher, err := c.config.Search.Cliff().New(loads)
		if err != nil {
			return 0, err
		}
		opts := experiment.DriveOptions{
			Name:  w.Name,
			Sense: c.sense,
			OnProbe: func(load uint64, leading bool, v experiment.Verdict) {
				tracker.observe(w.Name, load, leading, v)
				if err := store.RecordProbe(recordCtx, runID, w.Name, string(wave), leading, v); err != nil {
					logging.WithStacktrace(ctx.Log, err).Error("failed to record probe")
				}
			},
		}
		// Reference probes are only interesting once per group.
		if wave == explore.Primary {
			opts.Leading = w.Leading
		}
		return experiment.Drive(ctx, searcher, c.probeFor(w, wave), opts)
	}

	outcome, runErr := explore.Run(ctx, c.config.Groups, run, c.sense)
	tracker.report(ctx.Log)

	summary := newSummary(c.config.Name, runID, c.sense, outcome)
	if err := c.record(recordCtx, store, summary); err != nil {
		if runErr != nil {
			logging.WithStacktrace(ctx.Log, err).Error("failed to record campaign outcome")
			return summary, runErr
		}
		return summary, err
	}
	ctx.Log.Infof("campaign finished: %s", outcome)
	return summary, runErr
}

// record writes the outcome of every group, marks the run finished and writes the summary file.
func (c *Campaign) record(ctx context.Context, store *results.Store, summary *Summary) error {
	for _, g := range summary.Groups {
		err := store.RecordOutcome(ctx, results.Outcome{
			RunID:    summary.RunID,
			Group:    g.Name,
			LastGood: g.LastGood,
			Backfill: explore.FormatLoads(g.Backfill),
			Replayed: g.Replayed,
		})
		if err != nil {
			return err
		}
	}
	if err := store.FinishRun(ctx, summary.RunID, summary.Cancelled); err != nil {
		return err
	}
	if err := os.MkdirAll(c.config.OutputDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	return summary.WriteFile(filepath.Join(c.config.OutputDir, SummaryFile))
}

func (c *Campaign) httpProbe(w httpload.Workload, wave explore.Wave) experiment.Probe {
	runner := httpload.NewRunner(
		w, c.sense, c.config.Policy,
		httpload.WithPriming(c.config.Priming),
		httpload.WithOutput(c.config.OutputDir, w.Name+"-"+string(wave)),
	)
	return runner.Probe
}
