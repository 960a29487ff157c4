package explore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

// Sense says which direction of the probe space is harder for the system under test.
type Sense int

const (
	// Max means bigger values are harder, e.g. a target request rate.
	Max Sense = iota
	// Min means smaller values are harder, e.g. a memory limit.
	Min
)

func (s Sense) String() string {
	if s == Min {
		return "min"
	}
	return "max"
}

func ParseSense(s string) (Sense, error) {
	switch strings.ToLower(s) {
	case "max", "":
		return Max, nil
	case "min":
		return Min, nil
	default:
		return Max, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "sense",
			Value:   s,
			Message: "expected max or min",
		})
	}
}

// Beyond reports whether a is further along the hard direction than b.
func (s Sense) Beyond(a, b uint64) bool {
	if s == Min {
		return a < b
	}
	return a > b
}

// Better returns whichever of a and b is the more impressive result.
func (s Sense) Better(a, b uint64) uint64 {
	if s.Beyond(a, b) {
		return a
	}
	return b
}

// Backfill returns, for every group, the sorted set of values at which some other group succeeded but this group was
// never measured. Groups that never succeeded (last good value of zero) neither give nor receive values.
func Backfill(lastGood []uint64, sense Sense) [][]uint64 {
	backfill := make([][]uint64, len(lastGood))
	for i, mine := range lastGood {
		if mine == 0 {
			continue
		}
		var loads []uint64
		for j, theirs := range lastGood {
			if i == j || theirs == 0 {
				continue
			}
			if sense.Beyond(theirs, mine) {
				loads = append(loads, theirs)
			}
		}
		slices.Sort(loads)
		backfill[i] = slices.Compact(loads)
	}
	return backfill
}

// FormatLoads renders loads as a comma separated list.
func FormatLoads(loads []uint64) string {
	parts := make([]string, len(loads))
	for i, l := range loads {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ",")
}
