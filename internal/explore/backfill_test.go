package explore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfill(t *testing.T) {
	tests := map[string]struct {
		lastGood []uint64
		sense    Sense
		expected [][]uint64
	}{
		"bigger is harder": {
			lastGood: []uint64{100, 300},
			sense:    Max,
			expected: [][]uint64{{300}, nil},
		},
		"smaller is harder": {
			lastGood: []uint64{100, 300},
			sense:    Min,
			expected: [][]uint64{nil, {100}},
		},
		"groups that never succeeded neither give nor receive": {
			lastGood: []uint64{0, 100, 300},
			sense:    Max,
			expected: [][]uint64{nil, {300}, nil},
		},
		"values are deduplicated and sorted": {
			lastGood: []uint64{100, 300, 300, 200},
			sense:    Max,
			expected: [][]uint64{{200, 300}, nil, nil, {300}},
		},
		"ties produce nothing": {
			lastGood: []uint64{500, 500},
			sense:    Min,
			expected: [][]uint64{nil, nil},
		},
		"no groups": {
			lastGood: nil,
			sense:    Max,
			expected: [][]uint64{},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Backfill(tc.lastGood, tc.sense))
		})
	}
}

func TestParseSense(t *testing.T) {
	s, err := ParseSense("MIN")
	require.NoError(t, err)
	assert.Equal(t, Min, s)

	s, err = ParseSense("")
	require.NoError(t, err)
	assert.Equal(t, Max, s)

	_, err = ParseSense("sideways")
	assert.Error(t, err)
}

func TestSense_Better(t *testing.T) {
	assert.Equal(t, uint64(300), Max.Better(100, 300))
	assert.Equal(t, uint64(100), Min.Better(100, 300))
}
