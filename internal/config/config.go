package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the default development server port.
	DefaultPort = 3000

	// DefaultHost is the default development server host.
	DefaultHost = "localhost"

	// DefaultFallbackFile is the file served for client-side routed apps.
	DefaultFallbackFile = "index.html"
)

// Trace format presets.
const (
	TraceFormatPretty = "pretty"
	TraceFormatJSON   = "json"
)

// Middleware is an opaque handler wrapper supplied by the caller. User
// middleware runs after the engine's tracing and header injection and
// before the content handlers.
type Middleware = func(http.Handler) http.Handler

// Options is the loosely-typed configuration surface consumed by Normalize.
// Fields typed `any` accept multiple shapes; see the package documentation.
type Options struct {
	// ContentBase is a directory, a list of directories (all mounted at
	// "/"), or a directory-to-mount mapping.
	ContentBase any

	// Port is the listen port (0 selects DefaultPort).
	Port int

	// Host is the interface to bind (default "localhost").
	Host string

	// Proxy maps a route prefix to a target URL string or to an object
	// {target, stripPrefix}.
	Proxy map[string]any

	// Fallback enables SPA fallback: true, a file path, a route list, or
	// an object {path, routes}.
	Fallback any

	// Headers are stamped on every response before content handlers run.
	Headers map[string]string

	// Middleware is the ordered list of user handler wrappers.
	Middleware []Middleware

	// Trace enables request tracing: true, a format preset name, or an
	// object {format, filter}.
	Trace any

	// MimeOverrides maps a file extension to one or more content types.
	// When several are given the first is used for responses.
	MimeOverrides map[string]any

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string

	// Verbose lowers the diagnostic level to debug.
	Verbose bool
}

// ContentRoot is one static directory and the URL prefix it is exposed at.
type ContentRoot struct {
	// Dir is the absolute directory path.
	Dir string

	// Mount is the URL prefix, always beginning with "/".
	Mount string
}

// ProxyRoute is one canonical proxy rule.
type ProxyRoute struct {
	// Prefix is the matched route prefix.
	Prefix string

	// Target is the upstream base URL.
	Target *url.URL

	// StripPrefix removes the matched prefix from the forwarded path.
	StripPrefix bool
}

// Fallback is the canonical SPA fallback setting.
type Fallback struct {
	// FilePath is the absolute path of the fallback file.
	FilePath string

	// Routes limits the fallback to these exact routes. Empty means every
	// unmatched qualifying request falls back.
	Routes []string

	// Degraded is set when the fallback file did not exist at
	// normalization time. The engine still starts; requests that would
	// fall back get a 404 and an error diagnostic.
	Degraded bool
}

// TraceConfig is the canonical tracing setting. A nil *TraceConfig on
// ServeConfig means tracing is disabled.
type TraceConfig struct {
	// Format is a preset name ("pretty" or "json").
	Format string

	// Filters is an ordered list of glob patterns; a request is logged
	// when any pattern matches its path. Empty logs everything.
	Filters []string
}

// TLSConfig carries the certificate material for an HTTPS listener.
type TLSConfig struct {
	CertPath string
	KeyPath  string
}

// ServeConfig is the canonical configuration record. It is immutable after
// Normalize; reconfiguration always produces a new ServeConfig.
type ServeConfig struct {
	ContentBase   []ContentRoot
	Port          int
	Host          string
	Proxy         []ProxyRoute
	Fallback      *Fallback
	Headers       map[string]string
	Middleware    []Middleware
	Trace         *TraceConfig
	MimeOverrides map[string]string
	TLS           *TLSConfig
	Verbose       bool
}

// Addr returns the host:port string the server binds.
func (c *ServeConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Scheme returns "https" when TLS material is configured.
func (c *ServeConfig) Scheme() string {
	if c.TLS != nil {
		return "https"
	}
	return "http"
}

// URL returns the base URL of the server.
func (c *ServeConfig) URL() string {
	return c.Scheme() + "://" + c.Addr()
}

// RootDir returns the first content directory mounted at "/", or "".
func (c *ServeConfig) RootDir() string {
	for _, root := range c.ContentBase {
		if root.Mount == "/" {
			return root.Dir
		}
	}
	return ""
}

// Fingerprint returns a stable digest of the canonical configuration. The
// lifecycle manager treats a start with an unchanged fingerprint as a no-op,
// so a build tool invoking the entry point once per build binds one socket.
// Middleware functions are not comparable; only their count participates.
func (c *ServeConfig) Fingerprint() string {
	var b strings.Builder

	fmt.Fprintf(&b, "addr=%s tls=%v verbose=%v;", c.Addr(), c.TLS != nil, c.Verbose)
	for _, root := range c.ContentBase {
		fmt.Fprintf(&b, "base=%s=>%s;", root.Dir, root.Mount)
	}
	for _, route := range c.Proxy {
		fmt.Fprintf(&b, "proxy=%s=>%s strip=%v;", route.Prefix, route.Target, route.StripPrefix)
	}
	if c.Fallback != nil {
		fmt.Fprintf(&b, "fallback=%s routes=%v;", c.Fallback.FilePath, c.Fallback.Routes)
	}
	headerNames := make([]string, 0, len(c.Headers))
	for name := range c.Headers {
		headerNames = append(headerNames, name)
	}
	sort.Strings(headerNames)
	for _, name := range headerNames {
		fmt.Fprintf(&b, "header=%s:%s;", name, c.Headers[name])
	}
	fmt.Fprintf(&b, "middleware=%d;", len(c.Middleware))
	if c.Trace != nil {
		fmt.Fprintf(&b, "trace=%s filters=%v;", c.Trace.Format, c.Trace.Filters)
	}
	extNames := make([]string, 0, len(c.MimeOverrides))
	for ext := range c.MimeOverrides {
		extNames = append(extNames, ext)
	}
	sort.Strings(extNames)
	for _, ext := range extNames {
		fmt.Fprintf(&b, "mime=%s:%s;", ext, c.MimeOverrides[ext])
	}
	if c.TLS != nil {
		fmt.Fprintf(&b, "cert=%s key=%s;", c.TLS.CertPath, c.TLS.KeyPath)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
