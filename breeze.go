// Package breeze is a development-time HTTP serving engine. It serves a
// workspace's static files, proxies API prefixes to upstream servers, falls
// back to an app shell for client-side routes, and traces every request —
// all from one loosely-typed configuration record.
package breeze

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/devtools"
	"github.com/breeze-dev/breeze/internal/lifecycle"
	"github.com/breeze-dev/breeze/internal/logging"
	"github.com/breeze-dev/breeze/internal/serve"
	"github.com/breeze-dev/breeze/internal/watch"
)

// Server is the serving controller. It owns the canonical configuration,
// the lifecycle manager, and (in watch mode) the live-reload hub and file
// watcher. Operations are safe to call from one goroutine at a time; the
// lifecycle manager serializes the listener itself.
type Server struct {
	logger      *logrus.Logger
	formatter   serve.Formatter
	watch       bool
	liveReload  bool
	configFile  string
	loadOptions func() (Options, error)

	manager *lifecycle.Manager
	reload  *serve.ReloadHub

	mu          sync.Mutex
	cfg         *config.ServeConfig
	watchCancel context.CancelFunc
}

// New normalizes the options into a canonical configuration and builds the
// controller. Loose-shape errors are fatal here, before any socket binds.
func New(opts Options, options ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range options {
		opt(s)
	}
	defaultSink := s.logger == nil
	if defaultSink {
		s.logger = logging.New(logging.Options{Verbose: opts.Verbose})
	}

	cfg, err := config.Normalize(opts, s.logger)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg

	if defaultSink && cfg.Trace != nil && cfg.Trace.Format == config.TraceFormatJSON {
		// The json trace preset implies a structured sink. A logger the
		// caller injected is theirs to format.
		logging.UseJSON(s.logger)
	}

	if s.watch || s.liveReload {
		s.reload = serve.NewReloadHub()
	}
	s.manager = lifecycle.NewManager(s.buildPipeline, s.logger)
	return s, nil
}

// Start binds the listener and begins serving. A second Start with an
// unchanged configuration is a no-op. In watch mode the file watcher runs
// until Stop or context cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if err := s.manager.Start(ctx, cfg); err != nil {
		return err
	}

	if s.watch {
		s.mu.Lock()
		if s.watchCancel == nil {
			s.startWatcherLocked(cfg)
		}
		s.mu.Unlock()
	}
	return nil
}

// startWatcherLocked replaces the watcher goroutine so it watches cfg's
// content roots. Callers hold mu.
func (s *Server) startWatcherLocked(cfg *config.ServeConfig) {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.runWatcher(watchCtx, cfg)
}

// Stop drains the listener and halts the watcher. Safe on an idle server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	s.mu.Unlock()

	if s.reload != nil {
		s.reload.Close()
	}
	return s.manager.Stop(ctx)
}

// Restart normalizes fresh options and swaps the server onto them. The old
// listener finishes draining before the new one binds. Connected browsers
// are told to reload.
func (s *Server) Restart(ctx context.Context, opts Options) error {
	cfg, err := config.Normalize(opts, s.logger)
	if err != nil {
		// A broken reconfiguration keeps the old server running.
		return err
	}

	if err := s.manager.Restart(ctx, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	if s.watchCancel != nil {
		// The content roots may have changed; re-root the watcher so
		// new directories produce reloads and removed ones go quiet.
		s.startWatcherLocked(cfg)
	}
	s.mu.Unlock()

	if s.reload != nil {
		s.reload.NotifyReload()
	}
	return nil
}

// Ready returns a channel closed once the listener accepts requests.
func (s *Server) Ready() <-chan struct{} {
	return s.manager.Ready()
}

// Addr returns the bound address, or "" while idle. With port 0 this is
// where the real port shows up.
func (s *Server) Addr() string {
	return s.manager.Addr()
}

// URL returns the base URL of the running server, or "" while idle.
func (s *Server) URL() string {
	return s.manager.URL()
}

// NotifyReload broadcasts a full-page reload to connected browsers.
func (s *Server) NotifyReload() {
	if s.reload != nil {
		s.reload.NotifyReload()
	}
}

// PrintPaths logs a human-readable summary of what is served from where.
func (s *Server) PrintPaths() {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	for _, root := range cfg.ContentBase {
		s.logger.WithFields(logrus.Fields{"mount": root.Mount, "dir": root.Dir}).
			Info("serving static files")
	}
	for _, route := range cfg.Proxy {
		s.logger.WithFields(logging.ProxyFields(route.Prefix, route.Target.String())).
			Info("proxying requests")
	}
	if cfg.Fallback != nil {
		s.logger.WithField("file", cfg.Fallback.FilePath).Info("SPA fallback enabled")
	}
}

// OpenPage launches the OS browser at the served URL joined with path.
// Missing launcher binaries are silently ignored.
func (s *Server) OpenPage(path string) {
	base := s.URL()
	if base == "" {
		return
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	openURL(base + path)
}

// buildPipeline is the lifecycle manager's handler factory.
func (s *Server) buildPipeline(cfg *config.ServeConfig) http.Handler {
	opts := serve.PipelineOptions{
		Logger:    s.logger,
		Formatter: s.formatter,
		Reload:    s.reload,
	}
	if root := cfg.RootDir(); root != "" {
		var dtOpts []devtools.Option
		if rewrite := wslRootRewrite(); rewrite != nil {
			dtOpts = append(dtOpts, devtools.WithRootRewrite(rewrite))
		}
		opts.DevTools = devtools.NewHandler(root, s.logger, dtOpts...)
	}
	return serve.NewPipeline(cfg, opts)
}

// runWatcher feeds filesystem changes into reloads and restarts.
func (s *Server) runWatcher(ctx context.Context, cfg *config.ServeConfig) {
	roots := make([]string, 0, len(cfg.ContentBase))
	for _, root := range cfg.ContentBase {
		roots = append(roots, root.Dir)
	}

	watcher := watch.New(watch.Options{
		Roots:      roots,
		ConfigFile: s.configFile,
		Logger:     s.logger,
	})
	watcher.OnChange(s.handleChanges)

	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithField("scope", "watch").Warnf("watcher stopped: %v", err)
	}
}

// handleChanges maps one debounced change batch to the cheapest action:
// a config restart beats a reload, a full reload beats a css refresh.
func (s *Server) handleChanges(changes []watch.Change) {
	hasConfig := false
	allCSS := true
	var cssFile string
	for _, c := range changes {
		switch c.Kind {
		case watch.KindConfig:
			hasConfig = true
			allCSS = false
		case watch.KindCSS:
			cssFile = c.Path
		default:
			allCSS = false
		}
	}

	if hasConfig && s.loadOptions != nil {
		opts, err := s.loadOptions()
		if err != nil {
			s.logger.WithField("scope", "watch").
				Errorf("config reload failed, keeping the running configuration: %v", err)
			return
		}
		if err := s.Restart(context.Background(), opts); err != nil {
			s.logger.WithField("scope", "watch").
				Errorf("restart failed: %v", err)
		}
		return
	}

	if s.reload == nil {
		return
	}
	if allCSS && cssFile != "" {
		s.reload.NotifyCSS(cssFile)
		return
	}
	s.reload.NotifyReload()
}

// openURL opens a URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd

	switch {
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	case commandExists("start"):
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}

	cmd.Start()
}

// commandExists checks if a command exists in PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// wslRootRewrite maps a Linux path to the UNC form Windows browsers can
// open when running under WSL. Nil outside WSL.
func wslRootRewrite() func(string) string {
	distro := os.Getenv("WSL_DISTRO_NAME")
	if distro == "" {
		return nil
	}
	return func(root string) string {
		return `\\wsl.localhost\` + distro + strings.ReplaceAll(root, "/", `\`)
	}
}
