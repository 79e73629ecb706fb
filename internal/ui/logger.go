// Package ui provides terminal styling and logger setup for docqa.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// InitLogger initializes the charm logger with default settings.
func InitLogger() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetReportTimestamp(false)
}

// SetDebug enables debug logging.
func SetDebug(enabled bool) {
	if enabled {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// SetQuiet discards everything below warnings. Used when stdout carries
// machine-readable output.
func SetQuiet() {
	log.SetLevel(log.WarnLevel)
}

// SetOutput redirects log output, e.g. to keep stdout clean for a protocol.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
