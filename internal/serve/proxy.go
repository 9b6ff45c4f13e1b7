package serve

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
	"github.com/breeze-dev/breeze/internal/logging"
)

// Forwarder hands a rewritten request to an upstream target. The routing
// and rewrite logic above it never depends on the transport, so the
// implementation is swappable.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, target *url.URL)
}

// Proxy forwards matched path prefixes to upstream targets. Matching is
// longest-prefix-wins and segment-aware: "/api" matches "/api" and
// "/api/items" but never "/apiary". Ties between identical prefixes cannot
// occur in a canonical config; declaration order breaks any residual tie.
type Proxy struct {
	routes []proxyRoute
	logger *logrus.Logger
}

type proxyRoute struct {
	config.ProxyRoute
	forwarder Forwarder
}

// NewProxy builds the router, constructing one forwarder per route up
// front. A nil forwarder factory selects the default httputil transport.
func NewProxy(routes []config.ProxyRoute, logger *logrus.Logger, newForwarder func(config.ProxyRoute) Forwarder) *Proxy {
	p := &Proxy{logger: logger}
	for _, route := range routes {
		fw := Forwarder(nil)
		if newForwarder != nil {
			fw = newForwarder(route)
		}
		if fw == nil {
			fw = newHTTPForwarder(route, logger)
		}
		p.routes = append(p.routes, proxyRoute{ProxyRoute: route, forwarder: fw})
	}
	return p
}

// TryServe forwards the request when a configured prefix matches. It
// reports whether the request was handled.
func (p *Proxy) TryServe(w http.ResponseWriter, r *http.Request) bool {
	route := p.match(r.URL.Path)
	if route == nil {
		return false
	}

	forward := r.URL.Path
	if route.StripPrefix {
		forward = stripPrefix(route.Prefix, forward)
	}

	Tag(w, SourceProxy)
	TagTarget(w, resolvedTarget(route.Target, forward))

	out := r.Clone(r.Context())
	out.URL.Path = forward
	out.URL.RawPath = ""

	route.forwarder.Forward(w, out, route.Target)
	return true
}

// match returns the most specific matching route. Longer prefixes win;
// the first declared route wins among equals.
func (p *Proxy) match(path string) *proxyRoute {
	var best *proxyRoute
	bestLen := -1
	for i := range p.routes {
		route := &p.routes[i]
		if !prefixMatches(route.Prefix, path) {
			continue
		}
		if len(route.Prefix) > bestLen {
			best, bestLen = route, len(route.Prefix)
		}
	}
	return best
}

// prefixMatches reports whether the route prefix matches the path on a
// segment boundary.
func prefixMatches(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// stripPrefix removes the matched prefix; an empty result becomes "/".
func stripPrefix(prefix, path string) string {
	if prefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// resolvedTarget renders the full upstream URL a request is forwarded to,
// for the trace subsystem.
func resolvedTarget(target *url.URL, forwardPath string) string {
	joined := strings.TrimSuffix(target.Path, "/") + forwardPath
	return target.Scheme + "://" + target.Host + joined
}

// httpForwarder is the default Forwarder on net/http/httputil.
type httpForwarder struct {
	proxy *httputil.ReverseProxy
}

func newHTTPForwarder(route config.ProxyRoute, logger *logrus.Logger) *httpForwarder {
	target := route.Target

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Set("Forwarded", forwardedHeader(pr.In))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithFields(logging.ProxyFields(route.Prefix, target.String())).
				Errorf("upstream request failed: %v", err)
			http.Error(w, "502 bad gateway: upstream "+target.Host+" is not responding", http.StatusBadGateway)
		},
	}

	return &httpForwarder{proxy: proxy}
}

func (f *httpForwarder) Forward(w http.ResponseWriter, r *http.Request, _ *url.URL) {
	f.proxy.ServeHTTP(w, r)
}

// forwardedHeader builds the combined RFC 7239 Forwarded header carrying
// the original client IP, protocol, and host.
func forwardedHeader(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	forFor := host
	if strings.Contains(host, ":") {
		// IPv6 addresses must be bracketed and quoted.
		forFor = `"[` + host + `]"`
	}

	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}

	return fmt.Sprintf("for=%s;host=%s;proto=%s", forFor, r.Host, proto)
}
