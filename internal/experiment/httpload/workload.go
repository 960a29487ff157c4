// Package httpload measures an HTTP service with vegeta. Each probe primes the target, attacks it at the probed load
// and classifies the outcome with an experiment.Policy.
package httpload

import (
	"net/http"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

// Operation names histograms are recorded under. Reads are GET and HEAD requests, everything else is a write.
const (
	Writes = "writes"
	Reads  = "reads"
)

// Operations lists the operations in the order they are written to histogram files.
var Operations = []string{Writes, Reads}

type Target struct {
	Method string            `mapstructure:"method"`
	URL    string            `mapstructure:"url" validate:"required,url"`
	Body   string            `mapstructure:"body"`
	Header map[string]string `mapstructure:"header"`
}

// Workload describes one experiment group. With sense max the probe value is the request rate; with sense min it is
// the worker budget available to reach Rate.
type Workload struct {
	Name    string   `mapstructure:"name" validate:"required"`
	Targets []Target `mapstructure:"targets" validate:"required,min=1,dive"`
	// Rate is the fixed request rate, per second, used when the probe is a worker budget.
	Rate        uint64        `mapstructure:"rate"`
	Connections int           `mapstructure:"connections" validate:"gte=0"`
	Warmup      time.Duration `mapstructure:"warmup" validate:"gte=0"`
	Duration    time.Duration `mapstructure:"duration" validate:"gt=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// MetricsURL, if set, is scraped after every probe for the target's own view of the load.
	MetricsURL string `mapstructure:"metricsUrl" validate:"omitempty,url"`
	// Leading values are measured once before the search for reference.
	Leading []uint64 `mapstructure:"leading"`
}

func (w Workload) String() string {
	return w.Name
}

func (w Workload) vegetaTargets() []vegeta.Target {
	targets := make([]vegeta.Target, len(w.Targets))
	for i, t := range w.Targets {
		method := t.Method
		if method == "" {
			method = http.MethodGet
		}
		var header http.Header
		if len(t.Header) > 0 {
			header = make(http.Header, len(t.Header))
			for k, v := range t.Header {
				header.Set(k, v)
			}
		}
		targets[i] = vegeta.Target{
			Method: method,
			URL:    t.URL,
			Body:   []byte(t.Body),
			Header: header,
		}
	}
	return targets
}

// operationOf classifies a request by its method.
func operationOf(method string) string {
	switch method {
	case "", http.MethodGet, http.MethodHead:
		return Reads
	default:
		return Writes
	}
}
