package serve

import (
	"bufio"
	"net"
	"net/http"
)

// Source tags identify which handler produced a response. They are
// observability annotations only; clients never see them.
const (
	SourceStatic   = "static"
	SourceProxy    = "proxy"
	SourceFallback = "spa-fallback"
	SourceMock     = "mock"
	SourceUnknown  = "unknown"
)

// responseRecorder wraps the ResponseWriter to capture the status code,
// the response length, the producing handler's source tag, and the resolved
// upstream target for proxied requests.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	source      string
	target      string
	wroteHeader bool
}

func newRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK, source: SourceUnknown}
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// Flush passes through so streaming responses keep working.
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes through so the live-reload websocket can upgrade.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap supports http.ResponseController.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *responseRecorder) setSource(source string) { r.source = source }
func (r *responseRecorder) setTarget(target string) { r.target = target }

// sourceTagger is implemented by the recorder; Tag unwraps user middleware
// wrappers until it finds one.
type sourceTagger interface {
	setSource(string)
}

type targetTagger interface {
	setTarget(string)
}

// Tag stamps the source tag for the current response. Handlers outside this
// package (for example a mock backend mounted as user middleware) may call
// it with SourceMock or their own tag.
func Tag(w http.ResponseWriter, source string) {
	for w != nil {
		if t, ok := w.(sourceTagger); ok {
			t.setSource(source)
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}

// TagTarget records the resolved upstream URL for a proxied response.
func TagTarget(w http.ResponseWriter, target string) {
	for w != nil {
		if t, ok := w.(targetTagger); ok {
			t.setTarget(target)
			return
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return
		}
		w = u.Unwrap()
	}
}
