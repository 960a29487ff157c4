package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	FormatText = "text"
	FormatJson = "json"
	// FormatPlain prints bare messages, for command line output meant to be read rather than parsed.
	FormatPlain = "plain"
)

var validLogFormats = map[string]bool{
	FormatText:  true,
	FormatJson:  true,
	FormatPlain: true,
}

// Config defines how the process logs.
type Config struct {
	// Log level, e.g. info or debug
	Level string `mapstructure:"level"`
	// Logging format, one of text, json or plain
	Format string `mapstructure:"format"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatText}
}

func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return errors.WithStack(err)
	}
	return validateLogFormat(c.Format)
}

// Configure applies c to the standard logrus logger, writing to out.
func Configure(c Config, out io.Writer) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := logrus.ParseLevel(c.Level)
	logrus.SetLevel(level)
	logrus.SetOutput(out)
	switch strings.ToLower(c.Format) {
	case FormatJson:
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: RFC3339Milli})
	case FormatPlain:
		logrus.SetFormatter(new(CommandLineFormatter))
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli})
	}
	return nil
}

// MustConfigure is Configure for process start-up: on failure it reports to stderr and exits.
func MustConfigure(c Config, out io.Writer) {
	if err := Configure(c, out); err != nil {
		_, _ = io.WriteString(os.Stderr, "Error initializing logging: "+err.Error()+"\n")
		os.Exit(1)
	}
}

const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

func validateLogFormat(f string) error {
	if !validLogFormats[strings.ToLower(f)] {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, formats)
	}
	return nil
}
