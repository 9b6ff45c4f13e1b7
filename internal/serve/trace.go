package serve

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/breeze-dev/breeze/internal/config"
)

const tracerName = "breeze"

// TraceEvent describes one completed request. Events are ephemeral: they
// are produced per request, handed to the formatter and the metrics
// collector, and never retained.
type TraceEvent struct {
	Method  string
	Path    string
	Status  int
	Source  string
	Target  string
	Elapsed time.Duration
	Bytes   int64
}

// Formatter renders a TraceEvent as one log line.
type Formatter func(TraceEvent) string

// Tracer wraps the request/response cycle to emit trace lines and request
// metrics. Metrics are always collected; log emission requires tracing to
// be enabled and the path to pass the filter list.
type Tracer struct {
	cfg       *config.TraceConfig
	logger    *logrus.Logger
	formatter Formatter
	metrics   *Metrics
	tracer    oteltrace.Tracer
}

// NewTracer builds the trace middleware state. A nil TraceConfig disables
// log emission but keeps metrics. A nil formatter selects the configured
// preset.
func NewTracer(cfg *config.TraceConfig, logger *logrus.Logger, metrics *Metrics, formatter Formatter) *Tracer {
	t := &Tracer{
		cfg:       cfg,
		logger:    logger,
		formatter: formatter,
		metrics:   metrics,
	}
	if cfg != nil {
		t.tracer = otel.Tracer(tracerName)
		if t.formatter == nil && cfg.Format == config.TraceFormatPretty {
			t.formatter = PrettyFormatter
		}
	}
	return t
}

// Middleware is the outermost pipeline layer; it must wrap everything so
// the elapsed time covers the full handler chain.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newRecorder(w)
		start := time.Now()

		ctx := r.Context()
		var span oteltrace.Span
		if t.tracer != nil {
			ctx, span = t.tracer.Start(ctx, r.Method+" "+r.URL.Path)
		}

		next.ServeHTTP(rec, r.WithContext(ctx))

		ev := TraceEvent{
			Method:  r.Method,
			Path:    r.URL.Path,
			Status:  rec.status,
			Source:  rec.source,
			Target:  rec.target,
			Elapsed: time.Since(start),
			Bytes:   rec.bytes,
		}

		if span != nil {
			span.SetAttributes(
				attribute.String("http.method", ev.Method),
				attribute.String("http.target", ev.Path),
				attribute.Int("http.status_code", ev.Status),
				attribute.String("breeze.source", ev.Source),
			)
			if ev.Target != "" {
				span.SetAttributes(attribute.String("breeze.upstream", ev.Target))
			}
			if ev.Status >= 500 {
				span.SetStatus(codes.Error, http.StatusText(ev.Status))
			}
			span.End()
		}

		if t.metrics != nil {
			t.metrics.Observe(ev)
		}

		// The response is already complete here; emission can never block
		// or corrupt it, and a broken custom formatter must not take the
		// connection down with it.
		t.emit(ev)
	})
}

func (t *Tracer) emit(ev TraceEvent) {
	if t.cfg == nil || !t.matches(ev.Path) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.WithField("scope", "trace").Errorf("trace formatter panicked: %v", r)
		}
	}()

	if t.formatter != nil {
		t.logger.Info(t.formatter(ev))
		return
	}

	// JSON preset: structured fields, let the sink render them.
	fields := logrus.Fields{
		"scope":   "trace",
		"method":  ev.Method,
		"path":    ev.Path,
		"status":  ev.Status,
		"source":  ev.Source,
		"elapsed": ev.Elapsed.String(),
		"bytes":   ev.Bytes,
	}
	if ev.Target != "" {
		fields["target"] = ev.Target
	}
	t.logger.WithFields(fields).Info("request")
}

// matches reports whether the path passes the filter list. No filters
// means everything is logged; the first matching pattern wins.
func (t *Tracer) matches(p string) bool {
	if len(t.cfg.Filters) == 0 {
		return true
	}
	for _, pattern := range t.cfg.Filters {
		if matchFilter(pattern, p) {
			return true
		}
	}
	return false
}

// matchFilter applies glob-style matching. A trailing "/*" also matches
// deeper paths, so "/api/*" covers "/api/items/42".
func matchFilter(pattern, p string) bool {
	if ok, _ := path.Match(pattern, p); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// ANSI escapes for the pretty console format.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiDim    = "\033[2m"
)

// PrettyFormatter renders method, path, status (color-coded by class),
// source tag, upstream target when present, elapsed time, and byte length.
func PrettyFormatter(ev TraceEvent) string {
	var color string
	switch {
	case ev.Status >= 500:
		color = ansiRed
	case ev.Status >= 400:
		color = ansiYellow
	case ev.Status >= 300:
		color = ansiCyan
	case ev.Status >= 200:
		color = ansiGreen
	default:
		color = ansiDim
	}

	line := fmt.Sprintf("%s %s %s%d%s [%s]", ev.Method, ev.Path, color, ev.Status, ansiReset, ev.Source)
	if ev.Target != "" {
		line += " -> " + ev.Target
	}
	line += fmt.Sprintf(" %s %dB", ev.Elapsed.Round(time.Microsecond), ev.Bytes)
	return line
}
