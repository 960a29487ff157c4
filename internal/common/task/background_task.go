package task

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

type task struct {
	function    func()
	interval    time.Duration
	metricName  string
	stopChannel chan struct{}
}

// BackgroundTaskManager runs functions periodically until stopped. It is not threadsafe and should only be accessed
// from a single goroutine.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	wg            *sync.WaitGroup
	clock         clock.Clock
	registerer    prometheus.Registerer
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		wg:            &sync.WaitGroup{},
		clock:         clock.RealClock{},
		registerer:    prometheus.DefaultRegisterer,
	}
}

// WithClock replaces the clock that paces the tasks. Must be called before any task is registered.
func (m *BackgroundTaskManager) WithClock(c clock.Clock) *BackgroundTaskManager {
	m.clock = c
	return m
}

// WithRegisterer replaces the registry task latency histograms are registered with.
func (m *BackgroundTaskManager) WithRegisterer(r prometheus.Registerer) *BackgroundTaskManager {
	m.registerer = r
	return m
}

// Register runs backgroundTask once straight away and then every interval.
func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) error {
	histogram, err := m.latencyHistogram(metricName)
	if err != nil {
		return err
	}
	t := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  metricName,
		stopChannel: make(chan struct{}),
	}
	m.startBackgroundTask(t, histogram)
	m.tasks = append(m.tasks, t)
	return nil
}

// StopAll stops every task and waits for them to finish. It returns true if they did not finish within timeout.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

// latencyHistogram registers the histogram of a task, reusing one that is already registered under the same name.
// Several campaigns run by one process share their task histograms.
func (m *BackgroundTaskManager) latencyHistogram(metricName string) (prometheus.Histogram, error) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    m.metricsPrefix + metricName + "_latency_seconds",
		Help:    "Background loop " + metricName + " latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	})
	if err := m.registerer.Register(histogram); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
		}
		return nil, errors.Wrapf(err, "registering latency histogram of task %s", metricName)
	}
	return histogram, nil
}

func (m *BackgroundTaskManager) startBackgroundTask(t *task, histogram prometheus.Histogram) {
	run := func() {
		start := m.clock.Now()
		t.function()
		histogram.Observe(m.clock.Since(start).Seconds())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		run()
		for {
			select {
			case <-m.clock.After(t.interval):
			case <-t.stopChannel:
				return
			}
			run()
		}
	}()
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	for _, t := range m.tasks {
		close(t.stopChannel)
	}
	m.tasks = nil
}
