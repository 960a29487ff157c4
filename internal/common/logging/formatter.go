package logging

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter prints only the message, so that command output reads like ordinary program output. Warnings
// and errors keep their level as a prefix.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level <= log.WarnLevel {
		return []byte(fmt.Sprintf("%s: %s\n", entry.Level, entry.Message)), nil
	}
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}
