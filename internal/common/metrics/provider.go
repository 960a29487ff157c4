package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
)

// MetricsProvider returns a snapshot of the system under test's own metrics, keyed by series.
type MetricsProvider interface {
	Collect(context.Context, *logrus.Entry) (map[string]float64, error)
}

// ManualMetricsProvider returns whatever it was last given.
type ManualMetricsProvider struct {
	metrics         map[string]float64
	collectionDelay time.Duration
	mu              sync.Mutex
}

func (srv *ManualMetricsProvider) WithMetrics(metrics map[string]float64) *ManualMetricsProvider {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.metrics = metrics
	return srv
}

func (srv *ManualMetricsProvider) WithCollectionDelay(d time.Duration) *ManualMetricsProvider {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.collectionDelay = d
	return srv
}

func (srv *ManualMetricsProvider) Collect(ctx context.Context, _ *logrus.Entry) (map[string]float64, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.collectionDelay != 0 {
		select {
		case <-time.After(srv.collectionDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return srv.metrics, nil
}

// HttpMetricsProvider scrapes a Prometheus text endpoint exposed by the system under test.
type HttpMetricsProvider struct {
	url    string
	client *http.Client
	// prefixes, if any, restricts the result to series whose name starts with one of them.
	prefixes []string
}

func NewHttpMetricsProvider(url string, client *http.Client, prefixes ...string) *HttpMetricsProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HttpMetricsProvider{
		url:      url,
		client:   client,
		prefixes: prefixes,
	}
}

func (srv *HttpMetricsProvider) Collect(ctx context.Context, log *logrus.Entry) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := srv.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("scraping %s returned %s", srv.url, resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing metrics from %s", srv.url)
	}
	metrics := make(map[string]float64)
	for name, family := range families {
		if !srv.wanted(name) {
			continue
		}
		for _, m := range family.GetMetric() {
			value, ok := sampleValue(family.GetType(), m)
			if !ok {
				log.Debugf("ignoring %s series of %s", family.GetType(), name)
				continue
			}
			metrics[seriesKey(name, m.GetLabel())] = value
		}
	}
	return metrics, nil
}

func (srv *HttpMetricsProvider) wanted(name string) bool {
	if len(srv.prefixes) == 0 {
		return true
	}
	for _, p := range srv.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// sampleValue returns the single value of a counter, gauge or untyped series. Summaries and histograms are reduced to
// their sample count.
func sampleValue(t dto.MetricType, m *dto.Metric) (float64, bool) {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	case dto.MetricType_SUMMARY:
		return float64(m.GetSummary().GetSampleCount()), true
	case dto.MetricType_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount()), true
	default:
		return 0, false
	}
}

// seriesKey renders a series the way it appears in the exposition format, with labels sorted by name.
func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
