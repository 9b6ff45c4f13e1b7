package serve

import (
	"mime"
	"path"
	"strings"
)

// extraMimeTypes covers extensions the platform table commonly misses.
var extraMimeTypes = map[string]string{
	".mjs":         "text/javascript; charset=utf-8",
	".cjs":         "text/javascript; charset=utf-8",
	".wasm":        "application/wasm",
	".map":         "application/json; charset=utf-8",
	".webmanifest": "application/manifest+json",
	".avif":        "image/avif",
	".woff2":       "font/woff2",
	".md":          "text/markdown; charset=utf-8",
}

const fallbackMimeType = "application/octet-stream"

// MimeResolver maps a file extension to a content type, consulting user
// overrides before the platform table and the builtin extras.
type MimeResolver struct {
	overrides map[string]string
}

// NewMimeResolver builds a resolver over the canonical overrides map
// (extensions lowercased, leading dot).
func NewMimeResolver(overrides map[string]string) *MimeResolver {
	return &MimeResolver{overrides: overrides}
}

// Resolve returns the content type for a file name or path. Resolution
// order: explicit override, platform table, builtin extras, generic binary.
func (m *MimeResolver) Resolve(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return fallbackMimeType
	}

	if m != nil && m.overrides != nil {
		if ct, ok := m.overrides[ext]; ok {
			return ct
		}
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if ct, ok := extraMimeTypes[ext]; ok {
		return ct
	}
	return fallbackMimeType
}
