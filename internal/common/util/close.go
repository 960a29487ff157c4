package util

import (
	"io"

	"github.com/sirupsen/logrus"
)

// CloseResource closes c, logging rather than returning any failure. Use it for resources whose close errors cannot
// change the outcome, such as files that were only read.
func CloseResource(log *logrus.Entry, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warnf("failed to close %s cleanly", name)
	}
}
