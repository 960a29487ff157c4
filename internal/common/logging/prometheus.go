package logging

import (
	"github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
)

// AddPrometheusHook makes logger count the lines it logs by level. The counters are registered with the default
// Prometheus registry, so this must be called at most once per process.
func AddPrometheusHook(logger *logrus.Logger) error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return err
	}
	logger.AddHook(hook)
	return nil
}
