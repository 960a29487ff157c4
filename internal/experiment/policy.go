package experiment

import (
	"fmt"
	"time"
)

// Telemetry is what a single probe measured.
type Telemetry struct {
	// Load is the probe value the measurement ran at.
	Load uint64
	// TargetRate is the request rate the load generator aimed for, per second.
	TargetRate float64
	// Throughput is the rate of successful responses actually achieved, per second.
	Throughput    float64
	Requests      uint64
	SuccessRatio  float64
	MeanSojourn   time.Duration
	MedianSojourn time.Duration
	// MedianProcessing and P99Processing describe service time alone, excluding queueing before the request was sent.
	MedianProcessing time.Duration
	P99Processing    time.Duration
	Errors           []string
	// Scraped holds the target's own metrics, collected after the probe, when a metrics endpoint is configured.
	Scraped map[string]float64
}

// Shortfall is the fraction of the target rate that was not achieved.
func (t Telemetry) Shortfall() float64 {
	if t.TargetRate <= 0 {
		return 0
	}
	return (t.TargetRate - t.Throughput) / t.TargetRate
}

// Verdict is the classification of one probe.
type Verdict struct {
	Overloaded bool
	// Reasons explains an overloaded verdict. Empty otherwise.
	Reasons   []string
	Telemetry Telemetry
}

func Good(t Telemetry) Verdict {
	return Verdict{Telemetry: t}
}

func Overloaded(t Telemetry, reasons ...string) Verdict {
	return Verdict{Overloaded: true, Reasons: reasons, Telemetry: t}
}

// Policy holds the thresholds beyond which a probe counts as overloaded.
type Policy struct {
	MaxMedianSojourn       time.Duration `validate:"gt=0"`
	MaxThroughputShortfall float64       `validate:"gte=0,lte=1"`
	MinSuccessRatio        float64       `validate:"gte=0,lte=1"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxMedianSojourn:       100 * time.Millisecond,
		MaxThroughputShortfall: 0.05,
		MinSuccessRatio:        0.99,
	}
}

// Classify applies the policy to a measurement. A measurement without any completed requests is always overloaded.
func (p Policy) Classify(t Telemetry) Verdict {
	if t.Requests == 0 {
		return Overloaded(t, "no requests completed")
	}
	var reasons []string
	if t.MedianSojourn == 0 {
		reasons = append(reasons, "median sojourn time is zero")
	} else if t.MedianSojourn > p.MaxMedianSojourn {
		reasons = append(reasons, fmt.Sprintf("median sojourn time %s exceeds %s", t.MedianSojourn, p.MaxMedianSojourn))
	}
	if shortfall := t.Shortfall(); shortfall > p.MaxThroughputShortfall {
		reasons = append(reasons, fmt.Sprintf(
			"achieved %.1f/s against a target of %.1f/s (%.1f%% short)", t.Throughput, t.TargetRate, shortfall*100,
		))
	}
	if t.SuccessRatio < p.MinSuccessRatio {
		reasons = append(reasons, fmt.Sprintf("success ratio %.3f is below %.3f", t.SuccessRatio, p.MinSuccessRatio))
	}
	if len(reasons) > 0 {
		return Overloaded(t, reasons...)
	}
	return Good(t)
}
