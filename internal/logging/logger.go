package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures the diagnostic log sink.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// JSON switches from the console text formatter to JSON output.
	JSON bool

	// Output overrides the destination (default: stderr).
	Output io.Writer
}

// New builds the engine's diagnostic logger. The engine writes structured
// messages to it but does not own it; callers may pass their own logger
// anywhere the engine accepts one.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	if opts.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if opts.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "15:04:05",
			FullTimestamp:   true,
		})
	}

	return logger
}

// UseJSON switches an existing logger onto the structured JSON formatter.
// The trace "json" preset routes through here so the whole sink emits
// machine-readable lines, not just the trace fields.
func UseJSON(logger *logrus.Logger) {
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
}

// Discard returns a logger that drops everything. Used in tests and as the
// default when a caller passes nil.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
