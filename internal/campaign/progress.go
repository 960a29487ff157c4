package campaign

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/G-Research/cliffbench/internal/experiment"
	"github.com/G-Research/cliffbench/internal/explore"
)

// progress tallies probes as they are classified so that a long campaign can report how far it has got.
type progress struct {
	lock       sync.Mutex
	clock      clock.PassiveClock
	sense      explore.Sense
	started    time.Time
	probes     int
	overloaded int
	best       map[string]uint64
}

func newProgress(c clock.PassiveClock, sense explore.Sense) *progress {
	return &progress{
		clock:   c,
		sense:   sense,
		started: c.Now(),
		best:    map[string]uint64{},
	}
}

func (p *progress) observe(group string, load uint64, leading bool, v experiment.Verdict) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.probes++
	if v.Overloaded {
		p.overloaded++
		return
	}
	if leading {
		return
	}
	if best, ok := p.best[group]; ok {
		p.best[group] = p.sense.Better(best, load)
	} else {
		p.best[group] = load
	}
}

func (p *progress) String() string {
	p.lock.Lock()
	defer p.lock.Unlock()

	groups := maps.Keys(p.best)
	slices.Sort(groups)
	best := make([]string, len(groups))
	for i, g := range groups {
		best[i] = fmt.Sprintf("%s=%d", g, p.best[g])
	}
	s := fmt.Sprintf("%d probes (%d overloaded) in %s", p.probes, p.overloaded, p.clock.Since(p.started).Round(time.Second))
	if len(best) > 0 {
		s += "; best so far " + strings.Join(best, " ")
	}
	return s
}

func (p *progress) report(log *logrus.Entry) {
	log.Info(p.String())
}
