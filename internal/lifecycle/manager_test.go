package lifecycle

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/errors"
	"github.com/breeze-dev/breeze/internal/logging"
)

// ephemeralConfig asks the kernel for a free port so tests never collide.
func ephemeralConfig() *config.ServeConfig {
	return &config.ServeConfig{Host: "127.0.0.1", Port: 0}
}

func textHandler(body string) HandlerFactory {
	return func(*config.ServeConfig) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, body)
		})
	}
}

func startManager(t *testing.T, m *Manager, cfg *config.ServeConfig) {
	t.Helper()
	if err := m.Start(context.Background(), cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { m.Stop(context.Background()) })
}

func fetch(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("get %s: %v", addr, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestManager_StartServesAndStops(t *testing.T) {
	m := NewManager(textHandler("hello"), logging.Discard())
	if m.State() != StateIdle {
		t.Fatalf("fresh manager state = %s", m.State())
	}

	startManager(t, m, ephemeralConfig())

	if m.State() != StateListening {
		t.Fatalf("state after start = %s", m.State())
	}
	select {
	case <-m.Ready():
	default:
		t.Fatal("Ready channel should be closed once listening")
	}
	if got := fetch(t, m.Addr()); got != "hello" {
		t.Errorf("body = %q", got)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.State() != StateIdle {
		t.Errorf("state after stop = %s", m.State())
	}
	if m.Addr() != "" {
		t.Errorf("addr after stop = %q", m.Addr())
	}
}

func TestManager_StartIsIdempotent(t *testing.T) {
	cfg := &config.ServeConfig{Host: "127.0.0.1", Port: 0}
	m := NewManager(textHandler("one"), logging.Discard())
	startManager(t, m, cfg)

	addr := m.Addr()
	ready := m.Ready()

	// Same fingerprint: nothing rebinds.
	if err := m.Start(context.Background(), cfg); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if m.Addr() != addr {
		t.Errorf("addr changed across an idempotent start: %q -> %q", addr, m.Addr())
	}
	if m.Ready() != ready {
		t.Error("Ready channel changed across an idempotent start")
	}
}

func TestManager_StartWithChangedConfigRestarts(t *testing.T) {
	m := NewManager(textHandler("x"), logging.Discard())
	startManager(t, m, &config.ServeConfig{Host: "127.0.0.1", Port: 0})

	ready := m.Ready()

	changed := &config.ServeConfig{Host: "127.0.0.1", Port: 0, Verbose: true}
	if err := m.Start(context.Background(), changed); err != nil {
		t.Fatalf("start with changed config: %v", err)
	}

	if m.State() != StateListening {
		t.Fatalf("state = %s", m.State())
	}
	if m.Ready() == ready {
		t.Error("changed configuration should have rebound the socket")
	}
	if cfg := m.Config(); cfg == nil || !cfg.Verbose {
		t.Error("manager should serve the new configuration")
	}
	if got := fetch(t, m.Addr()); got != "x" {
		t.Errorf("body = %q", got)
	}
}

func TestManager_RestartDrainsBeforeBinding(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := func(*config.ServeConfig) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			started <- struct{}{}
			<-release
			io.WriteString(w, "slow")
		})
	}

	m := NewManager(slow, logging.Discard())
	startManager(t, m, ephemeralConfig())
	addr := m.Addr()

	// Park a request in the handler so the drain has something to wait for.
	got := make(chan string, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		got <- string(body)
	}()
	<-started

	restarted := make(chan error, 1)
	go func() {
		restarted <- m.Restart(context.Background(), ephemeralConfig())
	}()

	select {
	case <-restarted:
		t.Fatal("restart completed while a request was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	if err := <-restarted; err != nil {
		t.Fatalf("restart: %v", err)
	}
	if body := <-got; body != "slow" {
		t.Errorf("in-flight response = %q, want it served to completion", body)
	}
	if m.State() != StateListening {
		t.Errorf("state after restart = %s", m.State())
	}
}

func TestManager_AddrInUseIsFatal(t *testing.T) {
	first := NewManager(textHandler("a"), logging.Discard())
	startManager(t, first, ephemeralConfig())

	_, portStr, _ := net.SplitHostPort(first.Addr())
	port, _ := strconv.Atoi(portStr)
	second := NewManager(textHandler("b"), logging.Discard())
	err := second.Start(context.Background(), &config.ServeConfig{Host: "127.0.0.1", Port: port})
	if err == nil {
		second.Stop(context.Background())
		t.Fatal("binding an occupied port should fail")
	}

	var be *errors.Error
	if !stderrors.As(err, &be) {
		t.Fatalf("error type = %T", err)
	}
	if be.Category != errors.CategoryBind {
		t.Errorf("category = %q, want bind", be.Category)
	}
	if be.Suggestion == "" {
		t.Error("bind errors should carry a fix suggestion")
	}
	if second.State() != StateIdle {
		t.Errorf("failed bind should leave the manager idle, state = %s", second.State())
	}
}

func TestManager_StopIdleIsNoop(t *testing.T) {
	m := NewManager(textHandler(""), logging.Discard())
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop on idle: %v", err)
	}
}

func TestManager_URLReflectsBoundPort(t *testing.T) {
	m := NewManager(textHandler(""), logging.Discard())
	startManager(t, m, ephemeralConfig())

	_, port, _ := net.SplitHostPort(m.Addr())
	want := "http://127.0.0.1:" + port
	if m.URL() != want {
		t.Errorf("URL = %q, want %q", m.URL(), want)
	}
}
