package serve

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/config"
)

// Static serves files from the configured content roots. Roots are resolved
// to absolute paths at normalization time, never per request. When several
// roots share a mount, the first registered one wins for any file both can
// serve; files only the later root has still resolve through it.
type Static struct {
	roots  []config.ContentRoot
	mime   *MimeResolver
	logger *logrus.Logger
}

// NewStatic builds the static handler for the canonical content roots.
func NewStatic(roots []config.ContentRoot, mime *MimeResolver, logger *logrus.Logger) *Static {
	return &Static{roots: roots, mime: mime, logger: logger}
}

// TryServe serves the request if some content root has a matching file.
// It reports whether the request was handled.
func (s *Static) TryServe(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	for _, root := range s.roots {
		rel, ok := relPath(root.Mount, r.URL.Path)
		if !ok {
			continue
		}
		if s.serveFrom(root.Dir, rel, w, r) {
			return true
		}
	}
	return false
}

// serveFrom serves rel out of dir if it resolves to a regular file, trying
// index.html for directories.
func (s *Static) serveFrom(dir, rel string, w http.ResponseWriter, r *http.Request) bool {
	full := filepath.Join(dir, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	if info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
		if err != nil || info.IsDir() {
			return false
		}
	}

	f, err := os.Open(full)
	if err != nil {
		s.logger.WithField("scope", "static").Debugf("cannot open %q: %v", full, err)
		return false
	}
	defer f.Close()

	w.Header().Set("Content-Type", s.mime.Resolve(full))
	Tag(w, SourceStatic)
	http.ServeContent(w, r, filepath.Base(full), info.ModTime(), f)
	return true
}

// relPath returns a sanitized path relative to the mount. It rejects
// traversal and absolute-path tricks so static serving cannot escape the
// configured directory.
func relPath(mount, urlPath string) (string, bool) {
	var rel string
	if mount == "/" {
		rel = strings.TrimPrefix(urlPath, "/")
	} else {
		switch {
		case urlPath == mount:
			rel = ""
		case strings.HasPrefix(urlPath, mount+"/"):
			rel = urlPath[len(mount)+1:]
		default:
			return "", false
		}
	}

	if rel == "" {
		// Mount root itself: resolve the directory's index.html.
		return ".", true
	}

	// Reject NUL early (can appear via %00).
	if strings.IndexByte(rel, 0) != -1 {
		return "", false
	}

	// Reject platform-dependent separators.
	if strings.Contains(rel, "\\") {
		return "", false
	}

	// After prefix stripping, a leading "/" indicates an absolute-path
	// attempt (e.g. "//etc/passwd").
	if strings.HasPrefix(rel, "/") {
		return "", false
	}

	// Reject dot-segments before cleaning to avoid "cleaning away"
	// traversal attempts and changing the meaning of the request path.
	for _, seg := range strings.Split(rel, "/") {
		if seg == "." || seg == ".." {
			return "", false
		}
	}

	clean := path.Clean(rel)
	if clean == "." || clean == "" || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}

	osPath := filepath.FromSlash(clean)
	if filepath.IsAbs(osPath) || filepath.VolumeName(osPath) != "" {
		return "", false
	}

	return clean, true
}
