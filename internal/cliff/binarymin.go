package cliff

import (
	"github.com/pkg/errors"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

// BinaryMinSearcher finds the smallest budget (memory, workers, ...) at which the system still behaves. An overload
// means the budget was too small.
type BinaryMinSearcher struct {
	low        uint64
	high       uint64
	resolution uint64

	mid     uint64
	probing bool
	failed  bool
}

func NewBinaryMin(hi, resolution uint64) (*BinaryMinSearcher, error) {
	if hi == 0 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "hi",
			Value:   hi,
			Message: "upper bound must be above zero",
		})
	}
	if resolution == 0 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "resolution",
			Value:   resolution,
			Message: "resolution must be positive",
		})
	}
	return &BinaryMinSearcher{high: hi, resolution: resolution}, nil
}

func (s *BinaryMinSearcher) Next() (uint64, bool) {
	if s.probing {
		if s.failed {
			s.low = s.mid
		} else {
			s.high = s.mid
		}
		s.probing = false
	}
	if s.high-s.low <= s.resolution {
		return 0, false
	}
	s.mid = s.low + (s.high-s.low)/2
	s.probing = true
	s.failed = false
	return s.mid, true
}

func (s *BinaryMinSearcher) Overloaded() {
	if s.probing {
		s.failed = true
	}
}

// Bracket returns the largest budget known to be too small and the smallest budget not known to be too small.
func (s *BinaryMinSearcher) Bracket() (uint64, uint64) {
	return s.low, s.high
}
