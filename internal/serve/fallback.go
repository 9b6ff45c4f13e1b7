package serve

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
)

// Fallback serves a designated file for non-matched GET/HEAD requests whose
// Accept negotiation prefers HTML, enabling client-side-routed single-page
// apps. With an explicit route list only those exact routes fall back.
type Fallback struct {
	cfg    *config.Fallback
	mime   *MimeResolver
	logger *logrus.Logger
}

// NewFallback builds the fallback router. A nil config disables it.
func NewFallback(cfg *config.Fallback, mime *MimeResolver, logger *logrus.Logger) *Fallback {
	if cfg == nil {
		return nil
	}
	return &Fallback{cfg: cfg, mime: mime, logger: logger}
}

// TryServe serves the fallback file when the request qualifies. It reports
// whether the request was handled.
func (f *Fallback) TryServe(w http.ResponseWriter, r *http.Request) bool {
	if !f.qualifies(r) {
		return false
	}

	info, err := os.Stat(f.cfg.FilePath)
	if err != nil || info.IsDir() {
		// Degraded fallback: the engine started without the file; keep
		// reporting it so the 404 is explicable from the console.
		f.logger.WithField("scope", "fallback").
			Errorf("fallback file %q is missing", f.cfg.FilePath)
		return false
	}

	file, err := os.Open(f.cfg.FilePath)
	if err != nil {
		f.logger.WithField("scope", "fallback").
			Errorf("cannot open fallback file %q: %v", f.cfg.FilePath, err)
		return false
	}
	defer file.Close()

	w.Header().Set("Content-Type", f.mime.Resolve(f.cfg.FilePath))
	Tag(w, SourceFallback)
	http.ServeContent(w, r, filepath.Base(f.cfg.FilePath), info.ModTime(), file)
	return true
}

// qualifies applies the method, Accept, and route-list gates.
func (f *Fallback) qualifies(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if !acceptsHTML(r.Header.Get("Accept")) {
		return false
	}
	if len(f.cfg.Routes) == 0 {
		return true
	}
	for _, route := range f.cfg.Routes {
		if r.URL.Path == route {
			return true
		}
	}
	return false
}

// acceptsHTML reports whether the Accept header prefers HTML. An absent
// header qualifies, so plain curl requests still get the app shell; an
// explicit list without an HTML type (or a wildcard) does not.
func acceptsHTML(accept string) bool {
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(part)
		if idx := strings.Index(mediaType, ";"); idx != -1 {
			mediaType = strings.TrimSpace(mediaType[:idx])
		}
		switch mediaType {
		case "text/html", "application/xhtml+xml", "*/*":
			return true
		}
	}
	return false
}
