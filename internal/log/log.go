// Package log builds the daemon's logrus loggers: one root logger owned by
// main and per-component entries handed to everything else.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns the root logger writing to stderr. verbose lowers the level
// to debug.
func New(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Component tags an entry with the subsystem it belongs to.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Discard returns an entry that drops everything. Constructors use it when
// the caller passes a nil entry, which keeps tests quiet.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
