package explore

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/G-Research/cliffbench/internal/common/benchctx"
)

// MaxInFlight bounds the number of experiment groups running at once, across both waves.
const MaxInFlight = 3

// Experiment runs one experiment group. A nil loads slice asks for an adaptive search; a non-nil slice asks for
// exactly those loads to be measured in order. It returns the last probe value that was not overloaded, or zero.
//
// Cancellation of ctx is advisory: the experiment should check it between its own steps and return early with whatever
// it has measured so far. It should not treat cancellation as an error.
type Experiment[P any] func(ctx *benchctx.Context, params P, loads []uint64) (uint64, error)

type Wave string

const (
	Primary   Wave = "primary"
	Secondary Wave = "backfill"
)

// Outcome holds everything a campaign produced, including partial results when it was cancelled or failed.
type Outcome[P any] struct {
	Groups   []P
	LastGood []uint64
	// Backfill is nil when the primary wave did not complete.
	Backfill [][]uint64
	// Replayed holds the result of each group's backfill run, or zero when the group was not re-run.
	Replayed  []uint64
	Cancelled bool
}

// Run finds the boundary of every group and then re-measures each group at the boundaries its siblings reached.
//
// The first hard error stops further admissions and is returned once every running experiment has finished, together
// with the results collected so far. Cancelling ctx stops admissions in the same way but is not reported as an error.
func Run[P any](ctx *benchctx.Context, groups []P, experiment Experiment[P], sense Sense) (*Outcome[P], error) {
	outcome := &Outcome[P]{
		Groups:   groups,
		LastGood: make([]uint64, len(groups)),
		Replayed: make([]uint64, len(groups)),
	}
	sem := semaphore.NewWeighted(MaxInFlight)

	all := make([]int, len(groups))
	for i := range groups {
		all[i] = i
	}
	ctx.Log.Infof("exploring %d groups with sense %s", len(groups), sense)
	cancelled, err := runWave(ctx, sem, Primary, all, func(ctx *benchctx.Context, i int) error {
		lastGood, err := experiment(ctx, groups[i], nil)
		if err != nil {
			return errors.WithMessagef(err, "group %d (%v)", i, groups[i])
		}
		outcome.LastGood[i] = lastGood
		ctx.Log.Infof("group finished with last good value %d", lastGood)
		return nil
	})
	if err != nil {
		return outcome, err
	}
	if cancelled || benchctx.Cancelled(ctx) {
		ctx.Log.Info("exiting as instructed; skipping backfill")
		outcome.Cancelled = true
		return outcome, nil
	}

	outcome.Backfill = Backfill(outcome.LastGood, sense)
	var pending []int
	for i, loads := range outcome.Backfill {
		if len(loads) > 0 {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		ctx.Log.Info("no backfill needed")
		return outcome, nil
	}

	ctx.Log.Infof("backfilling %d groups", len(pending))
	cancelled, err = runWave(ctx, sem, Secondary, pending, func(ctx *benchctx.Context, i int) error {
		loads := outcome.Backfill[i]
		lastGood, err := experiment(ctx, groups[i], loads)
		if err != nil {
			return errors.WithMessagef(err, "backfill of group %d (%v) at %s", i, groups[i], FormatLoads(loads))
		}
		outcome.Replayed[i] = lastGood
		return nil
	})
	if cancelled {
		outcome.Cancelled = true
	}
	return outcome, err
}

// runWave admits one task per index, at most MaxInFlight at a time, and waits for all admitted tasks. It reports
// whether admission stopped because ctx was cancelled.
func runWave(ctx *benchctx.Context, sem *semaphore.Weighted, wave Wave, indices []int, task func(*benchctx.Context, int) error) (bool, error) {
	g, gctx := benchctx.ErrGroup(ctx)
	var failed atomic.Bool
	cancelled := false

	for _, i := range indices {
		if benchctx.Cancelled(ctx) {
			cancelled = true
			break
		}
		if failed.Load() {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			cancelled = benchctx.Cancelled(ctx)
			break
		}
		// A slot may have been freed by a task that failed, or after cancellation.
		if benchctx.Cancelled(ctx) || failed.Load() {
			sem.Release(1)
			cancelled = benchctx.Cancelled(ctx)
			break
		}

		i := i
		// Tasks get the caller's context rather than gctx so that one failure does not cancel its siblings.
		taskCtx := benchctx.WithLogFields(ctx, logrus.Fields{"wave": string(wave), "group": i})
		g.Go(func() error {
			experimentsInFlight.WithLabelValues(string(wave)).Inc()
			start := time.Now()
			err := task(taskCtx, i)
			experimentDuration.WithLabelValues(string(wave)).Observe(time.Since(start).Seconds())
			experimentsInFlight.WithLabelValues(string(wave)).Dec()
			if err != nil {
				failed.Store(true)
				experimentsFinished.WithLabelValues(string(wave), "error").Inc()
			} else {
				experimentsFinished.WithLabelValues(string(wave), "ok").Inc()
			}
			sem.Release(1)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return cancelled, err
	}
	return cancelled, nil
}

func (o *Outcome[P]) String() string {
	return fmt.Sprintf("%d groups, last good %v, backfill %v, cancelled %t", len(o.Groups), o.LastGood, o.Backfill, o.Cancelled)
}
