package config

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/errors"
	"github.com/breeze-dev/breeze/internal/logging"
)

// proxyEntry is the object shape of a proxy value.
type proxyEntry struct {
	Target      string `mapstructure:"target"`
	StripPrefix bool   `mapstructure:"stripPrefix"`
}

// fallbackEntry is the object shape of the fallback value.
type fallbackEntry struct {
	Path   string   `mapstructure:"path"`
	Routes []string `mapstructure:"routes"`
}

// traceEntry is the object shape of the trace value.
type traceEntry struct {
	Format string `mapstructure:"format"`
	Filter any    `mapstructure:"filter"`
}

// Normalize resolves the loose Options into one canonical ServeConfig.
// Malformed values degrade to safe defaults with a warn diagnostic; the
// returned error is non-nil only for an out-of-range port or unusable TLS
// material.
func Normalize(opts Options, logger *logrus.Logger) (*ServeConfig, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	if opts.Port < 0 || opts.Port > 65535 {
		return nil, errors.Newf(errors.CategoryConfig, "port %d is out of range", opts.Port).
			WithSuggestion("use a port between 0 and 65535")
	}

	cfg := &ServeConfig{
		Port:    opts.Port,
		Host:    opts.Host,
		Verbose: opts.Verbose,
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	cfg.ContentBase = normalizeContentBase(opts.ContentBase, logger)
	cfg.Proxy = normalizeProxy(opts.Proxy, logger)
	cfg.Fallback = normalizeFallback(opts.Fallback, cfg, logger)
	cfg.Trace = normalizeTrace(opts.Trace, logger)
	cfg.MimeOverrides = normalizeMime(opts.MimeOverrides, logger)

	if len(opts.Headers) > 0 {
		cfg.Headers = make(map[string]string, len(opts.Headers))
		for name, value := range opts.Headers {
			cfg.Headers[name] = value
		}
	}
	cfg.Middleware = append([]Middleware(nil), opts.Middleware...)

	tls, err := normalizeTLS(opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	cfg.TLS = tls

	return cfg, nil
}

// normalizeContentBase accepts a single path, a list of paths (all mounted
// at "/"), or a directory-to-mount mapping. A map shape has no inherent
// order, so its entries are sorted by directory for a deterministic
// canonical config.
func normalizeContentBase(v any, logger *logrus.Logger) []ContentRoot {
	var roots []ContentRoot

	switch base := v.(type) {
	case nil:
		roots = []ContentRoot{{Dir: ".", Mount: "/"}}
	case string:
		roots = []ContentRoot{{Dir: base, Mount: "/"}}
	case []string:
		for _, dir := range base {
			roots = append(roots, ContentRoot{Dir: dir, Mount: "/"})
		}
	case []any:
		for _, item := range base {
			switch entry := item.(type) {
			case string:
				roots = append(roots, ContentRoot{Dir: entry, Mount: "/"})
			case map[string]string, map[string]any, []string, []any:
				// Nested mapping or list: normalize it on its own and
				// splice the result in. Mounts are re-normalized below,
				// which is harmless.
				roots = append(roots, normalizeContentBase(entry, logger)...)
			default:
				logger.WithFields(logging.ConfigFields("contentBase")).
					Warnf("ignoring unsupported content entry %v", item)
			}
		}
	case map[string]string:
		dirs := make([]string, 0, len(base))
		for dir := range base {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			roots = append(roots, ContentRoot{Dir: dir, Mount: base[dir]})
		}
	case map[string]any:
		dirs := make([]string, 0, len(base))
		for dir := range base {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			mount, ok := base[dir].(string)
			if !ok {
				logger.WithFields(logging.ConfigFields("contentBase")).
					Warnf("ignoring non-string mount for %q", dir)
				continue
			}
			roots = append(roots, ContentRoot{Dir: dir, Mount: mount})
		}
	case []ContentRoot:
		roots = append(roots, base...)
	default:
		logger.WithFields(logging.ConfigFields("contentBase")).
			Warnf("unsupported content base shape %T, serving the working directory", v)
		roots = []ContentRoot{{Dir: ".", Mount: "/"}}
	}

	out := roots[:0]
	for _, root := range roots {
		abs, err := filepath.Abs(root.Dir)
		if err != nil {
			logger.WithFields(logging.ConfigFields("contentBase")).
				Warnf("cannot resolve %q: %v", root.Dir, err)
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			logger.WithFields(logging.ConfigFields("contentBase")).
				Warnf("content directory %q does not exist", abs)
		}
		out = append(out, ContentRoot{Dir: abs, Mount: normalizeMount(root.Mount)})
	}
	return out
}

// normalizeMount forces a leading "/" and strips a trailing one.
func normalizeMount(mount string) string {
	if mount == "" {
		return "/"
	}
	if !strings.HasPrefix(mount, "/") {
		mount = "/" + mount
	}
	if mount != "/" {
		mount = strings.TrimRight(mount, "/")
		if mount == "" {
			mount = "/"
		}
	}
	return mount
}

// normalizeProxy accepts bare target strings or {target, stripPrefix}
// objects. Entries with an empty target or a malformed URL are dropped with
// a warn diagnostic, never a fatal error. Prefixes are sorted so the
// canonical config is deterministic regardless of map iteration order;
// matching applies longest-prefix-wins separately.
func normalizeProxy(entries map[string]any, logger *logrus.Logger) []ProxyRoute {
	if len(entries) == 0 {
		return nil
	}

	prefixes := make([]string, 0, len(entries))
	for prefix := range entries {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	var routes []ProxyRoute
	for _, prefix := range prefixes {
		entry := proxyEntry{}
		switch value := entries[prefix].(type) {
		case string:
			entry.Target = value
		default:
			if err := mapstructure.Decode(value, &entry); err != nil {
				logger.WithFields(logging.ConfigFields("proxy")).
					Warnf("dropping %q: unsupported entry shape: %v", prefix, err)
				continue
			}
		}

		if strings.TrimSpace(entry.Target) == "" {
			logger.WithFields(logging.ConfigFields("proxy")).
				Warnf("dropping %q: no target configured", prefix)
			continue
		}

		target, err := url.Parse(entry.Target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			logger.WithFields(logging.ConfigFields("proxy")).
				Warnf("dropping %q: target %q is not a valid URL", prefix, entry.Target)
			continue
		}

		routes = append(routes, ProxyRoute{
			Prefix:      normalizeMount(prefix),
			Target:      target,
			StripPrefix: entry.StripPrefix,
		})
	}
	return routes
}

// normalizeFallback accepts true (default file under the first root-mounted
// content directory), a file path, a route list, or a {path, routes} object.
// A literal path resolving to a directory is rewritten to its index.html.
// A missing resolved file disables nothing: the fallback is kept in a
// degraded state so the engine still starts.
func normalizeFallback(v any, cfg *ServeConfig, logger *logrus.Logger) *Fallback {
	fb := &Fallback{}

	switch value := v.(type) {
	case nil:
		return nil
	case bool:
		if !value {
			return nil
		}
	case string:
		fb.FilePath = value
	case []string:
		fb.Routes = append(fb.Routes, value...)
	case []any:
		for _, item := range value {
			route, ok := item.(string)
			if !ok {
				logger.WithFields(logging.ConfigFields("fallback")).
					Warnf("ignoring non-string route %v", item)
				continue
			}
			fb.Routes = append(fb.Routes, route)
		}
	default:
		entry := fallbackEntry{}
		if err := mapstructure.Decode(value, &entry); err != nil {
			logger.WithFields(logging.ConfigFields("fallback")).
				Warnf("unsupported fallback shape %T, fallback disabled: %v", v, err)
			return nil
		}
		fb.FilePath = entry.Path
		fb.Routes = append(fb.Routes, entry.Routes...)
	}

	if fb.FilePath == "" {
		root := cfg.RootDir()
		if root == "" {
			logger.WithFields(logging.ConfigFields("fallback")).
				Warn("fallback enabled but no content directory is mounted at /, fallback disabled")
			return nil
		}
		fb.FilePath = filepath.Join(root, DefaultFallbackFile)
	}

	abs, err := filepath.Abs(fb.FilePath)
	if err != nil {
		logger.WithFields(logging.ConfigFields("fallback")).
			Warnf("cannot resolve fallback path %q, fallback disabled: %v", fb.FilePath, err)
		return nil
	}
	fb.FilePath = abs

	if info, err := os.Stat(fb.FilePath); err == nil && info.IsDir() {
		fb.FilePath = filepath.Join(fb.FilePath, DefaultFallbackFile)
	}
	if _, err := os.Stat(fb.FilePath); err != nil {
		fb.Degraded = true
		logger.WithFields(logging.ConfigFields("fallback")).
			Warnf("fallback file %q does not exist; requests will 404 until it is created", fb.FilePath)
	}

	for i, route := range fb.Routes {
		fb.Routes[i] = normalizeMount(route)
	}

	return fb
}

// normalizeTrace accepts a bool, a format preset name, or a {format,
// filter} object. Filters normalize to an ordered list of glob patterns.
func normalizeTrace(v any, logger *logrus.Logger) *TraceConfig {
	tc := &TraceConfig{Format: TraceFormatPretty}

	switch value := v.(type) {
	case nil:
		return nil
	case bool:
		if !value {
			return nil
		}
	case string:
		tc.Format = normalizeTraceFormat(value, logger)
	default:
		entry := traceEntry{}
		if err := mapstructure.Decode(value, &entry); err != nil {
			logger.WithFields(logging.ConfigFields("trace")).
				Warnf("unsupported trace shape %T, using defaults: %v", v, err)
			return tc
		}
		if entry.Format != "" {
			tc.Format = normalizeTraceFormat(entry.Format, logger)
		}
		tc.Filters = normalizeTraceFilters(entry.Filter, logger)
	}

	return tc
}

func normalizeTraceFormat(format string, logger *logrus.Logger) string {
	switch format {
	case TraceFormatPretty, TraceFormatJSON:
		return format
	default:
		logger.WithFields(logging.ConfigFields("trace")).
			Warnf("unknown trace format %q, using %q", format, TraceFormatPretty)
		return TraceFormatPretty
	}
}

func normalizeTraceFilters(v any, logger *logrus.Logger) []string {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		return []string{value}
	case []string:
		return append([]string(nil), value...)
	case []any:
		var filters []string
		for _, item := range value {
			pattern, ok := item.(string)
			if !ok {
				logger.WithFields(logging.ConfigFields("trace")).
					Warnf("ignoring non-string filter %v", item)
				continue
			}
			filters = append(filters, pattern)
		}
		return filters
	default:
		logger.WithFields(logging.ConfigFields("trace")).
			Warnf("unsupported trace filter shape %T, logging everything", v)
		return nil
	}
}

// normalizeMime accepts one or many content types per extension; the first
// is used for responses. Extensions are lowercased and forced to a leading
// dot.
func normalizeMime(overrides map[string]any, logger *logrus.Logger) map[string]string {
	if len(overrides) == 0 {
		return nil
	}

	out := make(map[string]string, len(overrides))
	for ext, value := range overrides {
		var contentType string
		switch v := value.(type) {
		case string:
			contentType = v
		case []string:
			if len(v) > 0 {
				contentType = v[0]
			}
		case []any:
			if len(v) > 0 {
				contentType, _ = v[0].(string)
			}
		}
		if contentType == "" {
			logger.WithFields(logging.ConfigFields("mimeOverrides")).
				Warnf("ignoring override for %q: no content type", ext)
			continue
		}

		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = contentType
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeTLS validates the certificate material. Unlike every other
// option, unusable TLS input is fatal: a secure listener cannot start
// without it.
func normalizeTLS(certPath, keyPath string) (*TLSConfig, error) {
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, errors.New(errors.CategoryConfig, "TLS requires both a certificate and a key").
			WithSuggestion("pass both --tls-cert and --tls-key, or neither")
	}
	if _, err := os.Stat(certPath); err != nil {
		return nil, errors.Newf(errors.CategoryResource, "TLS certificate %q is not readable", certPath).
			Wrap(err).
			WithSuggestion("check the certificate path")
	}
	if _, err := os.Stat(keyPath); err != nil {
		return nil, errors.Newf(errors.CategoryResource, "TLS key %q is not readable", keyPath).
			Wrap(err).
			WithSuggestion("check the key path")
	}
	return &TLSConfig{CertPath: certPath, KeyPath: keyPath}, nil
}
