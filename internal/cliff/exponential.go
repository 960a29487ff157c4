package cliff

import (
	"math"

	"github.com/pkg/errors"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

type ExponentialOption func(*ExponentialCliffSearcher)

// FillLeft makes the searcher emit, once the cliff has been bracketed, every multiple of the resolution strictly
// below the cliff that it has not already emitted.
func FillLeft() ExponentialOption {
	return func(s *ExponentialCliffSearcher) {
		s.fillLeft = true
	}
}

// Inverted makes the searcher look for the smallest tolerated value instead of the largest: probes descend from
// start and an overload means the value was too small.
func Inverted() ExponentialOption {
	return func(s *ExponentialCliffSearcher) {
		s.inverted = true
	}
}

// ExponentialCliffSearcher grows its probe by a doubling step until the first overload, then bisects the bracket
// between the last good probe and the failed one down to the initial step size.
type ExponentialCliffSearcher struct {
	start      uint64
	step       uint64
	resolution uint64
	inverted   bool
	fillLeft   bool

	phase   Phase
	started bool
	last    uint64
	failed  bool

	haveGood bool
	good     uint64

	// low and high bound the cliff once narrowing starts. Without Inverted low is the known-good side,
	// with Inverted it is the known-bad side.
	low       uint64
	high      uint64
	bisecting bool

	emitted map[uint64]struct{}
	fill    uint64
}

func NewExponential(start, step uint64, opts ...ExponentialOption) (*ExponentialCliffSearcher, error) {
	if step == 0 {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "step",
			Value:   step,
			Message: "growth step must be positive",
		})
	}
	s := &ExponentialCliffSearcher{
		start:      start,
		step:       step,
		resolution: step,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inverted && s.fillLeft {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "fillLeft",
			Value:   true,
			Message: "cannot fill below the cliff of an inverted search",
		})
	}
	if s.fillLeft {
		s.emitted = make(map[uint64]struct{})
	}
	return s, nil
}

func (s *ExponentialCliffSearcher) Next() (uint64, bool) {
	switch s.phase {
	case Growing:
		return s.grow()
	case Narrowing:
		return s.narrow()
	case Filling:
		return s.nextFill()
	default:
		return 0, false
	}
}

func (s *ExponentialCliffSearcher) Overloaded() {
	if !s.started || s.phase == Filling || s.phase == Done {
		return
	}
	s.failed = true
}

// Phase returns the stage the search is currently in.
func (s *ExponentialCliffSearcher) Phase() Phase {
	return s.phase
}

// Bracket returns the current lower and upper bound on the cliff. It is only meaningful once narrowing has started.
func (s *ExponentialCliffSearcher) Bracket() (uint64, uint64) {
	return s.low, s.high
}

func (s *ExponentialCliffSearcher) Resolution() uint64 {
	return s.resolution
}

func (s *ExponentialCliffSearcher) grow() (uint64, bool) {
	if !s.started {
		s.started = true
		return s.emit(s.start)
	}
	if s.failed {
		s.beginNarrowing()
		return s.narrow()
	}

	s.good, s.haveGood = s.last, true
	next, ok := s.advance()
	if !ok {
		s.phase = Done
		return 0, false
	}
	if s.step > math.MaxUint64/2 {
		s.step = math.MaxUint64
	} else {
		s.step *= 2
	}
	return s.emit(next)
}

// advance applies the current step to the last probe. It fails once the probe can no longer move.
func (s *ExponentialCliffSearcher) advance() (uint64, bool) {
	if s.inverted {
		if s.last == 0 {
			return 0, false
		}
		if s.last <= s.step {
			return 0, true
		}
		return s.last - s.step, true
	}
	if s.last > math.MaxUint64-s.step {
		return 0, false
	}
	return s.last + s.step, true
}

func (s *ExponentialCliffSearcher) beginNarrowing() {
	s.phase = Narrowing
	if s.inverted {
		s.low = s.last
		s.high = s.last
		if s.haveGood {
			s.high = s.good
		}
		return
	}
	s.low = 0
	if s.haveGood {
		s.low = s.good
	}
	s.high = s.last
}

func (s *ExponentialCliffSearcher) narrow() (uint64, bool) {
	if s.bisecting {
		s.settle()
	}
	if s.high-s.low <= s.resolution {
		return s.finish()
	}
	s.bisecting = true
	return s.emit(s.low + (s.high-s.low)/2)
}

// settle moves one side of the bracket onto the probe that was just measured.
func (s *ExponentialCliffSearcher) settle() {
	goodSideIsLow := !s.inverted
	if s.failed == goodSideIsLow {
		s.high = s.last
	} else {
		s.low = s.last
	}
}

func (s *ExponentialCliffSearcher) finish() (uint64, bool) {
	if !s.fillLeft {
		s.phase = Done
		return 0, false
	}
	s.phase = Filling
	s.fill = s.resolution
	return s.nextFill()
}

func (s *ExponentialCliffSearcher) nextFill() (uint64, bool) {
	for s.fill < s.low {
		v := s.fill
		if s.fill > math.MaxUint64-s.resolution {
			s.fill = s.low
		} else {
			s.fill += s.resolution
		}
		if _, seen := s.emitted[v]; seen {
			continue
		}
		return s.emit(v)
	}
	s.phase = Done
	return 0, false
}

func (s *ExponentialCliffSearcher) emit(v uint64) (uint64, bool) {
	s.last = v
	s.failed = false
	if s.emitted != nil {
		s.emitted[v] = struct{}{}
	}
	return v, true
}
