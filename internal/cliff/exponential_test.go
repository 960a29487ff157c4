package cliff

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

const maxProbes = 10_000

// drain runs s to exhaustion, marking every probe for which overloaded returns true.
func drain(t require.TestingT, s Searcher, overloaded func(uint64) bool) []uint64 {
	var probes []uint64
	for {
		v, ok := s.Next()
		if !ok {
			return probes
		}
		probes = append(probes, v)
		require.Less(t, len(probes), maxProbes, "search did not terminate")
		if overloaded(v) {
			s.Overloaded()
		}
	}
}

func above(cliff uint64) func(uint64) bool {
	return func(v uint64) bool { return v > cliff }
}

func below(cliff uint64) func(uint64) bool {
	return func(v uint64) bool { return v < cliff }
}

func never(uint64) bool { return false }

func TestExponential_Sequences(t *testing.T) {
	tests := map[string]struct {
		start      uint64
		step       uint64
		opts       []ExponentialOption
		overloaded func(uint64) bool
		expected   []uint64
		low, high  uint64
	}{
		"narrows between last good and first failure": {
			start:      100_000,
			step:       400_000,
			overloaded: above(1_000_000),
			expected:   []uint64{100_000, 500_000, 1_300_000, 900_000},
			low:        900_000,
			high:       1_300_000,
		},
		"first probe overloaded narrows from zero": {
			start:      100,
			step:       10,
			overloaded: above(30),
			expected:   []uint64{100, 50, 25, 37, 31},
			low:        25,
			high:       31,
		},
		"fill left emits missing multiples below the cliff": {
			start:      10,
			step:       10,
			opts:       []ExponentialOption{FillLeft()},
			overloaded: above(55),
			expected:   []uint64{10, 20, 40, 80, 60, 50, 30},
			low:        50,
			high:       60,
		},
		"fill left ignores overloads": {
			start:      10,
			step:       10,
			opts:       []ExponentialOption{FillLeft()},
			overloaded: func(v uint64) bool { return v > 55 || v == 30 },
			expected:   []uint64{10, 20, 40, 80, 60, 50, 30},
			low:        50,
			high:       60,
		},
		"inverted descends and mirrors the bracket": {
			start:      1000,
			step:       100,
			opts:       []ExponentialOption{Inverted()},
			overloaded: below(500),
			expected:   []uint64{1000, 900, 700, 300, 500, 400},
			low:        400,
			high:       500,
		},
		"inverted first probe overloaded is degenerate": {
			start:      1000,
			step:       100,
			opts:       []ExponentialOption{Inverted()},
			overloaded: below(2000),
			expected:   []uint64{1000},
			low:        1000,
			high:       1000,
		},
		"inverted stops at zero": {
			start:      100,
			step:       100,
			opts:       []ExponentialOption{Inverted()},
			overloaded: never,
			expected:   []uint64{100, 0},
		},
		"start of zero failing immediately": {
			start:      0,
			step:       5,
			overloaded: func(uint64) bool { return true },
			expected:   []uint64{0},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := NewExponential(tc.start, tc.step, tc.opts...)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, drain(t, s, tc.overloaded))
			assert.Equal(t, Done, s.Phase())
			if tc.high != 0 {
				low, high := s.Bracket()
				assert.Equal(t, tc.low, low)
				assert.Equal(t, tc.high, high)
			}
		})
	}
}

func TestExponential_GrowthOverflowExhausts(t *testing.T) {
	s, err := NewExponential(math.MaxUint64-5, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{math.MaxUint64 - 5}, drain(t, s, never))
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestExponential_OverloadedIsIdempotent(t *testing.T) {
	once, err := NewExponential(100, 10)
	require.NoError(t, err)
	twice, err := NewExponential(100, 10)
	require.NoError(t, err)

	// Overloaded before the first probe is ignored.
	twice.Overloaded()
	for {
		a, okA := once.Next()
		b, okB := twice.Next()
		require.Equal(t, okA, okB)
		if !okA {
			break
		}
		require.Equal(t, a, b)
		if a > 130 {
			once.Overloaded()
			twice.Overloaded()
			twice.Overloaded()
		}
	}
}

func TestExponential_InvalidConfiguration(t *testing.T) {
	tests := map[string]struct {
		step  uint64
		opts  []ExponentialOption
		field string
	}{
		"zero step":             {step: 0, field: "step"},
		"inverted and fillLeft": {step: 1, opts: []ExponentialOption{Inverted(), FillLeft()}, field: "fillLeft"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewExponential(10, tc.step, tc.opts...)
			var invalid *bencherrors.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tc.field, invalid.Name)
		})
	}
}

func TestExponential_GrowthDoublesIncrements(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint64Range(0, 1<<40).Draw(t, "start")
		step := rapid.Uint64Range(1, 1<<20).Draw(t, "step")
		n := rapid.IntRange(2, 20).Draw(t, "probes")

		s, err := NewExponential(start, step)
		require.NoError(t, err)
		var probes []uint64
		for i := 0; i < n; i++ {
			v, ok := s.Next()
			require.True(t, ok)
			probes = append(probes, v)
		}
		require.Equal(t, start, probes[0])
		increment := step
		for i := 1; i < len(probes); i++ {
			require.Equal(t, increment, probes[i]-probes[i-1], "increment %d", i)
			increment *= 2
		}
		require.Equal(t, Growing, s.Phase())
	})
}

func TestExponential_NarrowingStaysInsideBracket(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.Uint64Range(0, 1<<32).Draw(t, "start")
		step := rapid.Uint64Range(1, 1<<16).Draw(t, "step")
		cliff := rapid.Uint64Range(0, 1<<32).Draw(t, "cliff")
		fill := rapid.Bool().Draw(t, "fillLeft")

		var opts []ExponentialOption
		if fill {
			opts = append(opts, FillLeft())
			// Keep the number of fill probes bounded.
			cliff %= step*500 + 1
		}
		s, err := NewExponential(start, step, opts...)
		require.NoError(t, err)

		seen := make(map[uint64]bool)
		var filled []uint64
		for {
			v, ok := s.Next()
			if !ok {
				break
			}
			require.False(t, seen[v], "probe %d emitted twice", v)
			seen[v] = true
			require.Less(t, len(seen), maxProbes)

			switch s.Phase() {
			case Narrowing:
				low, high := s.Bracket()
				require.Less(t, low, v)
				require.Less(t, v, high)
			case Filling:
				low, _ := s.Bracket()
				require.Less(t, v, low)
				require.Zero(t, v%step)
				filled = append(filled, v)
			}
			if v > cliff {
				s.Overloaded()
			}
		}

		low, high := s.Bracket()
		require.LessOrEqual(t, low, cliff)
		require.Greater(t, high, cliff)
		require.LessOrEqual(t, high-low, step)
		require.IsIncreasing(t, filled)
		if fill {
			for v := step; v < low; v += step {
				require.True(t, seen[v], "multiple %d below the cliff was never probed", v)
			}
		}
	})
}
