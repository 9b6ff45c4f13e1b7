package lifecycle

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/errors"
	"github.com/breeze-dev/breeze/internal/logging"
)

// drainTimeout bounds how long Stop waits for in-flight requests when the
// caller's context carries no deadline of its own.
const drainTimeout = 5 * time.Second

// State is the lifecycle state of the managed server.
type State int

const (
	// StateIdle means no socket is bound.
	StateIdle State = iota

	// StateStarting means a bind is in progress.
	StateStarting

	// StateListening means the server is accepting requests.
	StateListening

	// StateDraining means the server is shutting down and finishing
	// in-flight requests.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// HandlerFactory builds the request pipeline for one configuration
// snapshot. It runs once per bind, never per request.
type HandlerFactory func(cfg *config.ServeConfig) http.Handler

// Manager owns the listener and the serve loop. It holds at most one bound
// socket at any time: a restart always finishes draining the old listener
// before the new one binds, so the browser never races a half-closed port.
type Manager struct {
	logger     *logrus.Logger
	newHandler HandlerFactory

	mu          sync.Mutex
	state       State
	cfg         *config.ServeConfig
	fingerprint string
	listener    net.Listener
	server      *http.Server
	ready       chan struct{}
	done        chan struct{}
}

// NewManager creates an idle manager. The handler factory is invoked on
// every successful bind with the configuration being served.
func NewManager(newHandler HandlerFactory, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		logger:     logger,
		newHandler: newHandler,
		ready:      make(chan struct{}),
	}
}

// Start binds the configured address and begins serving. Calling Start
// while already listening with an unchanged configuration fingerprint is a
// no-op; a changed fingerprint restarts onto the new configuration.
func (m *Manager) Start(ctx context.Context, cfg *config.ServeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp := cfg.Fingerprint()
	switch m.state {
	case StateListening:
		if fp == m.fingerprint {
			m.logger.WithFields(logging.ServerFields("start", m.listener.Addr().String())).
				Debug("already listening with an identical configuration")
			return nil
		}
		if err := m.drainLocked(ctx); err != nil {
			return err
		}
	case StateStarting, StateDraining:
		return errors.Newf(errors.CategoryLifecycle, "server is busy (%s)", m.state).
			WithSuggestion("wait for the pending start or stop to finish")
	}

	return m.bindLocked(cfg, fp)
}

// Restart drains the current listener, then binds the new configuration.
// Unlike Start it rebinds even when the fingerprint is unchanged, which is
// what a config-file watcher wants after the file is touched.
func (m *Manager) Restart(ctx context.Context, cfg *config.ServeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateListening {
		if err := m.drainLocked(ctx); err != nil {
			return err
		}
	}
	return m.bindLocked(cfg, cfg.Fingerprint())
}

// Stop drains the listener and returns the manager to idle. Stopping an
// idle manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateListening {
		return nil
	}
	return m.drainLocked(ctx)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready returns a channel that is closed once the server is accepting
// requests. Each bind installs a fresh channel.
func (m *Manager) Ready() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Addr returns the bound address, which reflects the real port when the
// configuration asked for an ephemeral one. Empty while idle.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// URL returns the base URL of the running server, or "" while idle.
func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil || m.cfg == nil {
		return ""
	}
	_, port, err := net.SplitHostPort(m.listener.Addr().String())
	if err != nil {
		return ""
	}
	return m.cfg.Scheme() + "://" + net.JoinHostPort(m.cfg.Host, port)
}

// Config returns the configuration currently being served, or nil.
func (m *Manager) Config() *config.ServeConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// bindLocked binds the socket and launches the serve loop. The caller holds
// the mutex.
func (m *Manager) bindLocked(cfg *config.ServeConfig, fp string) error {
	m.state = StateStarting

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		m.state = StateIdle
		if stderrors.Is(err, syscall.EADDRINUSE) {
			return errors.Newf(errors.CategoryBind, "address %s is already in use", cfg.Addr()).
				WithDetail(err.Error()).
				WithSuggestion("stop the process using port " + strconv.Itoa(cfg.Port) + " or pass a different --port")
		}
		return errors.FromError(err, errors.CategoryBind, "cannot bind "+cfg.Addr())
	}

	handler := m.newHandler(cfg)
	server := &http.Server{Handler: handler}

	m.cfg = cfg
	m.fingerprint = fp
	m.listener = listener
	m.server = server
	m.done = make(chan struct{})
	m.state = StateListening

	m.logger.WithFields(logging.ServerFields("listen", listener.Addr().String())).
		Debug("socket bound")

	done := m.done
	go func() {
		defer close(done)
		var err error
		if cfg.TLS != nil {
			err = server.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			err = server.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			m.logger.WithFields(logging.ServerFields("serve", listener.Addr().String())).
				Errorf("serve loop ended: %v", err)
		}
	}()

	close(m.ready)
	return nil
}

// drainLocked shuts the server down, waiting for in-flight requests, and
// resets to idle. The caller holds the mutex.
func (m *Manager) drainLocked(ctx context.Context) error {
	m.state = StateDraining
	addr := m.listener.Addr().String()
	m.logger.WithFields(logging.ServerFields("drain", addr)).Debug("draining connections")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, drainTimeout)
		defer cancel()
	}

	err := m.server.Shutdown(ctx)
	<-m.done

	m.server = nil
	m.listener = nil
	m.cfg = nil
	m.fingerprint = ""
	m.ready = make(chan struct{})
	m.state = StateIdle

	if err != nil {
		return errors.FromError(err, errors.CategoryLifecycle, "shutdown of "+addr+" did not complete cleanly")
	}
	return nil
}
