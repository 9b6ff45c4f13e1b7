// Package devtools serves the Chrome DevTools workspace descriptor, the
// well-known endpoint that lets the browser's editor map served files back
// to the project directory on disk.
package devtools

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/breeze-dev/breeze/internal/logging"
)

// DescriptorPath is the discovery endpoint Chrome probes.
const DescriptorPath = "/.well-known/appspecific/com.chrome.devtools.json"

// stateFile is where the workspace identity persists, relative to the root.
const stateFile = ".breeze/devtools.json"

// Workspace identifies the served project directory to the browser.
type Workspace struct {
	Root string `json:"root"`
	UUID string `json:"uuid"`
}

// Descriptor is the JSON document served at DescriptorPath.
type Descriptor struct {
	Workspace Workspace `json:"workspace"`
}

// Handler serves the workspace descriptor for one project root. The UUID is
// minted once and persisted, so the browser keeps recognizing the workspace
// across server restarts.
type Handler struct {
	root        string
	rootRewrite func(string) string
	logger      *logrus.Logger
}

// Option configures the handler.
type Option func(*Handler)

// WithRootRewrite installs a hook that rewrites the advertised root path,
// for filesystems the browser reaches under a different name (WSL mounts).
// Only the root is rewritten; the persisted UUID is untouched.
func WithRootRewrite(fn func(string) string) Option {
	return func(h *Handler) { h.rootRewrite = fn }
}

// NewHandler creates the descriptor handler for the given project root.
func NewHandler(root string, logger *logrus.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &Handler{root: root, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP renders the descriptor, minting and persisting the workspace
// UUID on first use.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := h.workspace()
	if err != nil {
		h.logger.WithField("scope", "devtools").
			Errorf("cannot establish workspace identity: %v", err)
		http.Error(w, "workspace identity unavailable", http.StatusInternalServerError)
		return
	}

	if h.rootRewrite != nil {
		ws.Root = h.rootRewrite(ws.Root)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(Descriptor{Workspace: ws})
}

// workspace loads the persisted identity, creating it on first use.
func (h *Handler) workspace() (Workspace, error) {
	path := filepath.Join(h.root, filepath.FromSlash(stateFile))

	if data, err := os.ReadFile(path); err == nil {
		var ws Workspace
		if err := json.Unmarshal(data, &ws); err == nil && ws.UUID != "" {
			// The root may have moved; the UUID is what must be stable.
			ws.Root = h.root
			return ws, nil
		}
		// Corrupt state file: fall through and mint a fresh identity.
	}

	ws := Workspace{Root: h.root, UUID: uuid.NewString()}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Workspace{}, err
	}
	data, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return Workspace{}, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return Workspace{}, err
	}
	return ws, nil
}
