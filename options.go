package breeze

import (
	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/serve"
)

// Options is the loose configuration surface. See internal/config.Options
// for the accepted shapes of each field.
type Options = config.Options

// Middleware wraps the request pipeline between header injection and the
// content handlers.
type Middleware = config.Middleware

// TraceEvent describes one completed request, as handed to a Formatter.
type TraceEvent = serve.TraceEvent

// Formatter renders a trace event into one log line.
type Formatter = serve.Formatter

// Option customizes a Server beyond the serve options.
type Option func(*Server)

// WithLogger replaces the diagnostic sink. Without it a logger is built
// from Options.Verbose.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithFormatter overrides the configured trace format preset.
func WithFormatter(f Formatter) Option {
	return func(s *Server) { s.formatter = f }
}

// WithWatch enables watch mode: content roots are watched and connected
// browsers reload on change. When configFile is non-empty it is watched
// too, and a change re-runs load to produce the options for a restart;
// a nil load keeps config changes as plain reloads.
func WithWatch(configFile string, load func() (Options, error)) Option {
	return func(s *Server) {
		s.watch = true
		s.configFile = configFile
		s.loadOptions = load
	}
}

// WithLiveReload mounts the reload endpoint without watching the
// filesystem; broadcasting is then the caller's job via NotifyReload.
func WithLiveReload() Option {
	return func(s *Server) { s.liveReload = true }
}
