package serve

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/devtools"
	"github.com/breeze-dev/breeze/internal/logging"
)

// Reserved engine endpoints.
const (
	MetricsPath = "/_breeze/metrics"
	HealthPath  = "/_breeze/healthz"
)

// PipelineOptions carries everything NewPipeline needs beyond the canonical
// config.
type PipelineOptions struct {
	// Logger is the diagnostic sink (required).
	Logger *logrus.Logger

	// Formatter overrides the trace format preset (optional).
	Formatter Formatter

	// Reload mounts the live-reload websocket endpoint when non-nil.
	Reload *ReloadHub

	// DevTools mounts the workspace-descriptor discovery endpoint when
	// non-nil.
	DevTools http.Handler

	// NewForwarder overrides the proxy transport (optional, for tests).
	NewForwarder func(config.ProxyRoute) Forwarder
}

// NewPipeline composes the ordered handler chain for one configuration
// snapshot. The ordering is load-bearing: tracing wraps everything to
// measure true latency, header injection precedes all content handlers,
// user middleware may intercept or rewrite before content is produced,
// static files shadow proxy routes, and the SPA fallback catches the rest.
func NewPipeline(cfg *config.ServeConfig, opts PipelineOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mime := NewMimeResolver(cfg.MimeOverrides)
	metrics := NewMetrics()
	tracer := NewTracer(cfg.Trace, logger, metrics, opts.Formatter)

	r := chi.NewRouter()
	r.Use(tracer.Middleware)
	if len(cfg.Headers) > 0 {
		r.Use(Headers(cfg.Headers))
	}
	for _, mw := range cfg.Middleware {
		r.Use(mw)
	}

	if opts.Reload != nil {
		r.Get(ReloadPath, opts.Reload.HandleWebSocket)
	}
	if opts.DevTools != nil {
		r.Handle(devtools.DescriptorPath, opts.DevTools)
	}
	r.Handle(MetricsPath, metrics.Handler())
	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	var content http.Handler = &cascade{
		static:   NewStatic(cfg.ContentBase, mime, logger),
		proxy:    NewProxy(cfg.Proxy, logger, opts.NewForwarder),
		fallback: NewFallback(cfg.Fallback, mime, logger),
	}
	if opts.Reload != nil {
		// With the hub mounted, every served page gets the client that
		// connects back to it.
		content = InjectScript(ReloadClientScript, content)
	}
	r.Handle("/*", content)

	return r
}

// cascade tries each content handler in precedence order and 404s when
// nothing claims the request.
type cascade struct {
	static   *Static
	proxy    *Proxy
	fallback *Fallback
}

func (c *cascade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.static != nil && c.static.TryServe(w, r) {
		return
	}
	if c.proxy != nil && c.proxy.TryServe(w, r) {
		return
	}
	if c.fallback != nil && c.fallback.TryServe(w, r) {
		return
	}
	http.NotFound(w, r)
}
