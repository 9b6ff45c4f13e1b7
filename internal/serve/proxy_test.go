package serve

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/logging"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestProxy_StripPrefixForwarding(t *testing.T) {
	var seen *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(r.Context())
		io.WriteString(w, "upstream response")
	}))
	defer upstream.Close()

	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, upstream.URL), StripPrefix: true},
	}
	proxy := NewProxy(routes, logging.Discard(), nil)

	rec := newRecorder(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.RemoteAddr = "192.0.2.7:54321"
	req.Host = "localhost:3000"

	if !proxy.TryServe(rec, req) {
		t.Fatal("matching prefix should be handled")
	}
	if seen == nil {
		t.Fatal("upstream never saw the request")
	}
	if seen.URL.Path != "/items" {
		t.Errorf("upstream path = %q, want /items", seen.URL.Path)
	}
	if rec.source != SourceProxy {
		t.Errorf("source = %q, want proxy", rec.source)
	}
	if want := upstream.URL + "/items"; rec.target != want {
		t.Errorf("target = %q, want %q", rec.target, want)
	}
}

func TestProxy_ForwardedHeaders(t *testing.T) {
	var fwd, xff, xfh string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fwd = r.Header.Get("Forwarded")
		xff = r.Header.Get("X-Forwarded-For")
		xfh = r.Header.Get("X-Forwarded-Host")
	}))
	defer upstream.Close()

	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, upstream.URL), StripPrefix: true},
	}
	proxy := NewProxy(routes, logging.Discard(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = "192.0.2.7:54321"
	req.Host = "localhost:3000"
	proxy.TryServe(httptest.NewRecorder(), req)

	if want := "for=192.0.2.7;host=localhost:3000;proto=http"; fwd != want {
		t.Errorf("Forwarded = %q, want %q", fwd, want)
	}
	if xff != "192.0.2.7" {
		t.Errorf("X-Forwarded-For = %q", xff)
	}
	if xfh != "localhost:3000" {
		t.Errorf("X-Forwarded-Host = %q", xfh)
	}
}

func TestProxy_KeepPrefix(t *testing.T) {
	var seenPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
	}))
	defer upstream.Close()

	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, upstream.URL), StripPrefix: false},
	}
	proxy := NewProxy(routes, logging.Discard(), nil)

	proxy.TryServe(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if seenPath != "/api/items" {
		t.Errorf("upstream path = %q, want /api/items", seenPath)
	}
}

func TestProxy_LongestPrefixWins(t *testing.T) {
	var hit string
	forwarder := func(name string) Forwarder {
		return forwarderFunc(func(http.ResponseWriter, *http.Request, *url.URL) { hit = name })
	}

	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, "http://localhost:9000")},
		{Prefix: "/api/v2", Target: mustURL(t, "http://localhost:9001")},
	}
	proxy := NewProxy(routes, logging.Discard(), func(r config.ProxyRoute) Forwarder {
		return forwarder(r.Prefix)
	})

	proxy.TryServe(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v2/items", nil))
	if hit != "/api/v2" {
		t.Errorf("matched %q, want the more specific /api/v2", hit)
	}

	proxy.TryServe(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items", nil))
	if hit != "/api" {
		t.Errorf("matched %q, want /api", hit)
	}
}

// forwarderFunc adapts a function to the Forwarder interface for tests.
type forwarderFunc func(http.ResponseWriter, *http.Request, *url.URL)

func (f forwarderFunc) Forward(w http.ResponseWriter, r *http.Request, target *url.URL) {
	f(w, r, target)
}

func TestProxy_NoMatchPassesThrough(t *testing.T) {
	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, "http://localhost:9000")},
	}
	proxy := NewProxy(routes, logging.Discard(), func(config.ProxyRoute) Forwarder {
		return forwarderFunc(func(http.ResponseWriter, *http.Request, *url.URL) {
			t.Fatal("forwarder must not run for unmatched paths")
		})
	})

	if proxy.TryServe(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/apiary", nil)) {
		t.Error("/apiary must not match the /api prefix")
	}
	if proxy.TryServe(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil)) {
		t.Error("unmatched path should pass through")
	}
}

func TestProxy_DeadUpstreamReturns502(t *testing.T) {
	// A closed test server leaves a port nothing is listening on.
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	routes := []config.ProxyRoute{
		{Prefix: "/api", Target: mustURL(t, target), StripPrefix: true},
	}
	proxy := NewProxy(routes, logging.Discard(), nil)

	rec := httptest.NewRecorder()
	proxy.TryServe(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "is not responding") {
		t.Errorf("body = %q, want an upstream failure message", rec.Body.String())
	}
}

func TestPrefixMatches(t *testing.T) {
	tests := []struct {
		prefix, path string
		want         bool
	}{
		{"/api", "/api", true},
		{"/api", "/api/items", true},
		{"/api", "/apiary", false},
		{"/api", "/ap", false},
		{"/", "/anything", true},
		{"/api/v2", "/api/v2/x", true},
	}
	for _, tt := range tests {
		if got := prefixMatches(tt.prefix, tt.path); got != tt.want {
			t.Errorf("prefixMatches(%q, %q) = %v, want %v", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"/api", "/api/items", "/items"},
		{"/api", "/api", "/"},
		{"/", "/items", "/items"},
		{"/api/v2", "/api/v2/a/b", "/a/b"},
	}
	for _, tt := range tests {
		if got := stripPrefix(tt.prefix, tt.path); got != tt.want {
			t.Errorf("stripPrefix(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}
