package serve

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
)

// InjectScript wraps next so complete text/html responses carry script
// before the closing </body> tag (falling back to </html>, then appending).
// Non-HTML and partial responses stream through untouched. HEAD requests
// are never wrapped; they carry no body to splice into.
func InjectScript(script string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		inj := &htmlInjector{ResponseWriter: w, script: script}
		next.ServeHTTP(inj, r)
		inj.finish()
	})
}

// htmlInjector buffers HTML bodies so the script lands inside the document
// and the Content-Length stays truthful. The buffering decision is made at
// WriteHeader time from the Content-Type the handler set.
type htmlInjector struct {
	http.ResponseWriter
	script      string
	status      int
	wroteHeader bool
	buffering   bool
	buf         bytes.Buffer
}

func (i *htmlInjector) WriteHeader(status int) {
	if i.wroteHeader {
		return
	}
	i.wroteHeader = true
	i.status = status

	switch status {
	case http.StatusNoContent, http.StatusPartialContent, http.StatusNotModified:
		// Never a complete document; leave it alone.
	default:
		if strings.HasPrefix(i.Header().Get("Content-Type"), "text/html") {
			i.buffering = true
			i.Header().Del("Content-Length")
			return
		}
	}
	i.ResponseWriter.WriteHeader(status)
}

func (i *htmlInjector) Write(p []byte) (int, error) {
	if !i.wroteHeader {
		i.WriteHeader(http.StatusOK)
	}
	if i.buffering {
		return i.buf.Write(p)
	}
	return i.ResponseWriter.Write(p)
}

// Unwrap lets Tag and TagTarget reach the recorder underneath.
func (i *htmlInjector) Unwrap() http.ResponseWriter { return i.ResponseWriter }

// Flush is a no-op while buffering; pass-through responses flush normally.
func (i *htmlInjector) Flush() {
	if i.buffering {
		return
	}
	if f, ok := i.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish releases a buffered HTML body with the script spliced in.
func (i *htmlInjector) finish() {
	if !i.buffering {
		return
	}
	body := i.buf.String()
	if idx := strings.LastIndex(body, "</body>"); idx != -1 {
		body = body[:idx] + i.script + body[idx:]
	} else if idx := strings.LastIndex(body, "</html>"); idx != -1 {
		body = body[:idx] + i.script + body[idx:]
	} else {
		body += i.script
	}
	i.Header().Set("Content-Length", strconv.Itoa(len(body)))
	i.ResponseWriter.WriteHeader(i.status)
	i.ResponseWriter.Write([]byte(body))
}
