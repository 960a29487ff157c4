// Package cliff contains the probe generators used to locate the point at which a system under test stops keeping up
// with the load it is given.
//
// Every generator implements Searcher. The caller pulls a value with Next, runs an experiment at that value and calls
// Overloaded if the experiment did not behave acceptably. What "acceptably" means is entirely up to the caller; the
// searchers only consume the verdict. Searchers are not safe for concurrent use; each experiment owns its own.
package cliff

// Searcher yields probe values and consumes pass/fail feedback for the most recent one.
type Searcher interface {
	// Next returns the next value to try, or false once the search is exhausted.
	Next() (uint64, bool)
	// Overloaded records that the value most recently returned by Next failed.
	// Calling it more than once for the same value has no further effect.
	Overloaded()
}

// Phase is the stage an adaptive search is in.
type Phase int

const (
	Growing Phase = iota
	Narrowing
	Filling
	Done
)

func (p Phase) String() string {
	switch p {
	case Growing:
		return "growing"
	case Narrowing:
		return "narrowing"
	case Filling:
		return "filling"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}
