package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	Format string // "text" or "json"
	Out    io.Writer
}

// New builds the process logger. Unknown levels fall back to info.
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	if opts.Out != nil {
		l.SetOutput(opts.Out)
	} else {
		l.SetOutput(os.Stderr)
	}

	lvl, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			DisableLevelTruncation: true,
			PadLevelText:           true,
			TimestampFormat:        "2006/01/02 15:04:05",
			FullTimestamp:          true,
		})
	}
	return l
}

// Discard returns a logger that drops everything. Services use it when none is injected.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return Discard()
	}
	return log
}
