package cliff

import (
	"github.com/pkg/errors"

	"github.com/G-Research/cliffbench/internal/common/bencherrors"
)

type Kind string

const (
	KindExponential Kind = "exponential"
	KindBinaryMin   Kind = "binarymin"
)

// Config describes the adaptive searcher an experiment should use when it is not replaying explicit loads.
type Config struct {
	Kind Kind
	// Exponential search
	Start    uint64
	Step     uint64
	FillLeft bool
	Inverted bool
	// Binary minimum search
	Hi         uint64
	Resolution uint64
}

// New returns a LoadIterator over loads if loads is non-nil and the configured adaptive searcher otherwise.
func (c Config) New(loads []uint64) (Searcher, error) {
	if loads != nil {
		return NewLoadIterator(loads), nil
	}
	switch c.Kind {
	case KindExponential, "":
		var opts []ExponentialOption
		if c.FillLeft {
			opts = append(opts, FillLeft())
		}
		if c.Inverted {
			opts = append(opts, Inverted())
		}
		return NewExponential(c.Start, c.Step, opts...)
	case KindBinaryMin:
		return NewBinaryMin(c.Hi, c.Resolution)
	default:
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "kind",
			Value:   c.Kind,
			Message: "expected exponential or binarymin",
		})
	}
}
