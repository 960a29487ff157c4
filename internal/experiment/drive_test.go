package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/cliffbench/internal/cliff"
	"github.com/G-Research/cliffbench/internal/common/benchctx"
	"github.com/G-Research/cliffbench/internal/explore"
)

// below returns a probe that is overloaded at and above the given load.
func below(cliffAt uint64) Probe {
	return func(_ *benchctx.Context, load uint64) (Verdict, error) {
		if load >= cliffAt {
			return Overloaded(Telemetry{}, "too much"), nil
		}
		return Good(Telemetry{}), nil
	}
}

func TestDrive_ExponentialFindsLastGood(t *testing.T) {
	searcher, err := cliff.NewExponential(100, 100)
	require.NoError(t, err)

	var probed []uint64
	lastGood, err := Drive(benchctx.Background(), searcher, below(1000), DriveOptions{
		Name:  "test",
		Sense: explore.Max,
		OnProbe: func(load uint64, leading bool, v Verdict) {
			assert.False(t, leading)
			assert.Equal(t, load, v.Telemetry.Load)
			probed = append(probed, load)
		},
	})
	require.NoError(t, err)
	// 100, 200, 400, 800, 1600 then narrowing between 800 and 1600.
	assert.Equal(t, []uint64{100, 200, 400, 800, 1600, 1200, 1000, 900}, probed)
	assert.Equal(t, uint64(900), lastGood)
}

func TestDrive_MinSenseReturnsLowestGood(t *testing.T) {
	searcher, err := cliff.NewBinaryMin(1024, 64)
	require.NoError(t, err)

	// Overloaded below 300.
	probe := func(_ *benchctx.Context, load uint64) (Verdict, error) {
		if load < 300 {
			return Overloaded(Telemetry{}), nil
		}
		return Good(Telemetry{}), nil
	}
	lastGood, err := Drive(benchctx.Background(), searcher, probe, DriveOptions{Sense: explore.Min})
	require.NoError(t, err)
	// 512 good, 256 bad, 384 good, 320 good, then the bracket [256, 320] is within the resolution.
	assert.Equal(t, uint64(320), lastGood)
}

func TestDrive_LeadingProbesDoNotCount(t *testing.T) {
	var leadingSeen []uint64
	lastGood, err := Drive(benchctx.Background(), cliff.NewLoadIterator([]uint64{512, 256}), below(300), DriveOptions{
		Sense:   explore.Min,
		Leading: []uint64{0},
		OnProbe: func(load uint64, leading bool, _ Verdict) {
			if leading {
				leadingSeen = append(leadingSeen, load)
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, leadingSeen)
	assert.Equal(t, uint64(256), lastGood)
}

func TestDrive_ReplayFeedsNothingBack(t *testing.T) {
	lastGood, err := Drive(
		benchctx.Background(),
		cliff.NewLoadIterator([]uint64{100, 2000, 500}),
		below(1000),
		DriveOptions{Sense: explore.Max},
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), lastGood)
}

func TestDrive_NothingGood(t *testing.T) {
	lastGood, err := Drive(benchctx.Background(), cliff.NewLoadIterator([]uint64{10, 20}), below(0), DriveOptions{})
	require.NoError(t, err)
	assert.Zero(t, lastGood)
}

func TestDrive_ProbeErrorKeepsLastGood(t *testing.T) {
	boom := errors.New("boom")
	probe := func(_ *benchctx.Context, load uint64) (Verdict, error) {
		if load == 30 {
			return Verdict{}, boom
		}
		return Good(Telemetry{}), nil
	}
	lastGood, err := Drive(benchctx.Background(), cliff.NewLoadIterator([]uint64{10, 20, 30, 40}), probe, DriveOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, uint64(20), lastGood)
}

func TestDrive_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := benchctx.WithCancel(benchctx.Background())
	defer cancel()

	var probed []uint64
	probe := func(_ *benchctx.Context, load uint64) (Verdict, error) {
		probed = append(probed, load)
		if load == 20 {
			cancel()
		}
		return Good(Telemetry{}), nil
	}
	lastGood, err := Drive(ctx, cliff.NewLoadIterator([]uint64{10, 20, 30}), probe, DriveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20}, probed)
	assert.Equal(t, uint64(20), lastGood)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestPolicy_Classify(t *testing.T) {
	healthy := Telemetry{
		TargetRate:    100,
		Throughput:    99,
		Requests:      1000,
		SuccessRatio:  1,
		MedianSojourn: 5 * time.Millisecond,
	}
	tests := map[string]struct {
		mutate     func(*Telemetry)
		overloaded bool
		reasons    int
	}{
		"healthy": {
			mutate: func(*Telemetry) {},
		},
		"no requests": {
			mutate:     func(t *Telemetry) { t.Requests = 0 },
			overloaded: true,
			reasons:    1,
		},
		"slow": {
			mutate:     func(t *Telemetry) { t.MedianSojourn = 150 * time.Millisecond },
			overloaded: true,
			reasons:    1,
		},
		"zero sojourn": {
			mutate:     func(t *Telemetry) { t.MedianSojourn = 0 },
			overloaded: true,
			reasons:    1,
		},
		"short of target": {
			mutate:     func(t *Telemetry) { t.Throughput = 90 },
			overloaded: true,
			reasons:    1,
		},
		"failing requests": {
			mutate: func(t *Telemetry) {
				t.SuccessRatio = 0.5
				t.Throughput = 50
			},
			overloaded: true,
			reasons:    2,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			telemetry := healthy
			tc.mutate(&telemetry)
			v := DefaultPolicy().Classify(telemetry)
			assert.Equal(t, tc.overloaded, v.Overloaded)
			assert.Len(t, v.Reasons, tc.reasons)
			assert.Equal(t, telemetry, v.Telemetry)
		})
	}
}

func TestTelemetry_Shortfall(t *testing.T) {
	assert.InDelta(t, 0.1, Telemetry{TargetRate: 100, Throughput: 90}.Shortfall(), 1e-9)
	assert.Zero(t, Telemetry{Throughput: 90}.Shortfall())
}
