package httpload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	vegeta "github.com/tsenart/vegeta/v12/lib"

	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/common/bencherrors"
	"github.com/G-Research/cliffbench/internal/common/logging"
	"github.com/G-Research/cliffbench/internal/common/metrics"
	"github.com/G-Research/cliffbench/internal/experiment"
	"github.com/G-Research/cliffbench/internal/explore"
	"github.com/G-Research/cliffbench/internal/histogram"
)

const (
	defaultWarmup        = time.Second
	defaultScrapeTimeout = 5 * time.Second
	// Priming never runs faster than this, whatever the probe.
	maxPrimeRate = 10
	// Worker pool size vegeta starts with.
	initialWorkers = 10
)

// PrimeConfig controls how hard the runner tries to get a first successful response out of the target.
type PrimeConfig struct {
	Attempts uint          `mapstructure:"attempts" validate:"gte=1"`
	Delay    time.Duration `mapstructure:"delay" validate:"gte=0"`
}

func DefaultPrimeConfig() PrimeConfig {
	return PrimeConfig{Attempts: 5, Delay: time.Second}
}

type Option func(*Runner)

// WithTelemetry makes the runner collect the target's own metrics after every probe.
func WithTelemetry(p metrics.MetricsProvider) Option {
	return func(r *Runner) {
		r.telemetry = p
	}
}

// WithOutput makes the runner write the histograms of every probe to dir, in files named after prefix and the probe.
func WithOutput(dir, prefix string) Option {
	return func(r *Runner) {
		r.outputDir = dir
		r.prefix = prefix
	}
}

func WithPriming(p PrimeConfig) Option {
	return func(r *Runner) {
		r.prime = p
	}
}

// Runner measures one workload. Its Probe method is an experiment.Probe.
type Runner struct {
	workload  Workload
	sense     explore.Sense
	policy    experiment.Policy
	prime     PrimeConfig
	telemetry metrics.MetricsProvider
	outputDir string
	prefix    string
}

func NewRunner(w Workload, sense explore.Sense, policy experiment.Policy, opts ...Option) *Runner {
	r := &Runner{
		workload: w,
		sense:    sense,
		policy:   policy,
		prime:    DefaultPrimeConfig(),
		prefix:   w.Name,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.telemetry == nil && w.MetricsURL != "" {
		r.telemetry = metrics.NewHttpMetricsProvider(w.MetricsURL, nil)
	}
	return r
}

// plan turns a probe value into a request rate and a worker budget, where a budget of zero means unlimited.
func (r *Runner) plan(load uint64) (rate uint64, workers uint64) {
	if r.sense == explore.Min {
		return r.workload.Rate, load
	}
	return load, 0
}

func (r *Runner) Probe(ctx *benchctx.Context, load uint64) (experiment.Verdict, error) {
	rate, workers := r.plan(load)
	if rate == 0 {
		return experiment.Verdict{}, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "rate",
			Value:   rate,
			Message: "request rate must be positive",
		})
	}
	targeter := vegeta.NewStaticTargeter(r.workload.vegetaTargets()...)

	ctx.Log.Debugf("priming %s", r.workload.Name)
	if err := r.primeTarget(ctx, targeter, rate); err != nil {
		if benchctx.Cancelled(ctx) {
			return experiment.Overloaded(experiment.Telemetry{}, "cancelled while priming"), nil
		}
		logging.WithStacktrace(ctx.Log, err).Warn("priming failed")
		return experiment.Overloaded(experiment.Telemetry{}, "priming failed: "+err.Error()), nil
	}
	if benchctx.Cancelled(ctx) {
		return experiment.Overloaded(experiment.Telemetry{}, "cancelled before measurement"), nil
	}

	ctx.Log.Infof("measuring at %d req/s with %s", rate, describeWorkers(workers))
	telemetry, err := r.measure(ctx, targeter, load, rate, workers)
	if err != nil {
		return experiment.Verdict{}, err
	}
	if r.telemetry != nil {
		scrapeCtx, cancel := benchctx.WithTimeout(ctx, r.scrapeTimeout())
		scraped, err := r.telemetry.Collect(scrapeCtx, ctx.Log)
		cancel()
		if err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("failed to collect target metrics")
		} else {
			telemetry.Scraped = scraped
		}
	}
	return r.policy.Classify(telemetry), nil
}

// scrapeTimeout bounds collection of the target's metrics by the workload's request timeout.
func (r *Runner) scrapeTimeout() time.Duration {
	if r.workload.Timeout > 0 {
		return r.workload.Timeout
	}
	return defaultScrapeTimeout
}

// primeTarget runs short, slow attacks until one of them gets a successful response.
func (r *Runner) primeTarget(ctx *benchctx.Context, targeter vegeta.Targeter, rate uint64) error {
	primeRate := rate
	if primeRate > maxPrimeRate {
		primeRate = maxPrimeRate
	}
	warmup := r.workload.Warmup
	if warmup == 0 {
		warmup = defaultWarmup
	}
	return retry.Do(
		func() error {
			var m vegeta.Metrics
			for res := range r.attacker(0).Attack(targeter, pacer(primeRate), warmup, r.workload.Name+"-prime") {
				m.Add(res)
			}
			m.Close()
			if m.Success == 0 {
				return errors.Errorf("no successful responses out of %d: %s", m.Requests, strings.Join(m.Errors, "; "))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.prime.Attempts),
		retry.Delay(r.prime.Delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.Debugf("priming attempt %d failed: %s", n+1, err)
		}),
	)
}

func (r *Runner) measure(ctx *benchctx.Context, targeter vegeta.Targeter, load, rate, workers uint64) (experiment.Telemetry, error) {
	start := time.Now()
	recorder := histogram.NewIntervalRecorder(start, Operations...)
	interval := time.Second / time.Duration(rate)

	var m vegeta.Metrics
	for res := range r.attacker(workers).Attack(targeter, pacer(rate), r.workload.Duration, r.workload.Name) {
		m.Add(res)
		intended := start.Add(time.Duration(res.Seq) * interval)
		sojourn := res.Timestamp.Add(res.Latency).Sub(intended)
		if sojourn < res.Latency {
			sojourn = res.Latency
		}
		if err := recorder.Record(operationOf(res.Method), res.Timestamp, res.Latency, sojourn); err != nil {
			return experiment.Telemetry{}, err
		}
	}
	m.Close()
	elapsed := time.Since(start)

	if r.outputDir != "" {
		if err := r.writeHistograms(ctx, recorder, load, elapsed); err != nil {
			return experiment.Telemetry{}, err
		}
	}

	sojourn, err := collapse(recorder, histogram.Sojourn)
	if err != nil {
		return experiment.Telemetry{}, err
	}
	return experiment.Telemetry{
		Load:             load,
		TargetRate:       float64(rate),
		Throughput:       m.Throughput,
		Requests:         m.Requests,
		SuccessRatio:     m.Success,
		MeanSojourn:      time.Duration(sojourn.Mean()) * time.Microsecond,
		MedianSojourn:    time.Duration(histogram.ValueAtQuantile(sojourn, 0.5)) * time.Microsecond,
		MedianProcessing: m.Latencies.P50,
		P99Processing:    m.Latencies.P99,
		Errors:           m.Errors,
	}, nil
}

func (r *Runner) writeHistograms(ctx *benchctx.Context, recorder *histogram.IntervalRecorder, load uint64, elapsed time.Duration) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	path := filepath.Join(r.outputDir, fmt.Sprintf("%s-%d.hist", r.prefix, load))
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := recorder.WriteTo(f, elapsed); err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}
	ctx.Log.Debugf("wrote histograms to %s", path)
	return nil
}

func (r *Runner) attacker(workers uint64) *vegeta.Attacker {
	opts := []func(*vegeta.Attacker){vegeta.KeepAlive(true)}
	if r.workload.Connections > 0 {
		opts = append(opts, vegeta.Connections(r.workload.Connections))
	}
	if r.workload.Timeout > 0 {
		opts = append(opts, vegeta.Timeout(r.workload.Timeout))
	}
	if workers > 0 {
		initial := uint64(initialWorkers)
		if workers < initial {
			initial = workers
		}
		opts = append(opts, vegeta.Workers(initial), vegeta.MaxWorkers(workers))
	}
	return vegeta.NewAttacker(opts...)
}

// collapse merges the given metric across every operation and window.
func collapse(recorder *histogram.IntervalRecorder, m histogram.Metric) (*hdrhistogram.Histogram, error) {
	all := histogram.NewHistograms()
	for _, op := range Operations {
		hs, err := recorder.Timeline(op).Collapse()
		if err != nil {
			return nil, err
		}
		if err := all.Merge(hs); err != nil {
			return nil, err
		}
	}
	return all.Metric(m), nil
}

func pacer(rate uint64) vegeta.Rate {
	return vegeta.Rate{Freq: int(rate), Per: time.Second}
}

func describeWorkers(workers uint64) string {
	if workers == 0 {
		return "unlimited workers"
	}
	return fmt.Sprintf("%d workers", workers)
}
