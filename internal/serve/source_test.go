package serve

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecorder_CapturesStatusAndBytes(t *testing.T) {
	rec := newRecorder(httptest.NewRecorder())

	rec.WriteHeader(http.StatusTeapot)
	rec.Write([]byte("short and stout"))

	if rec.status != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.status)
	}
	if rec.bytes != int64(len("short and stout")) {
		t.Errorf("bytes = %d, want %d", rec.bytes, len("short and stout"))
	}
}

func TestRecorder_DefaultStatus(t *testing.T) {
	rec := newRecorder(httptest.NewRecorder())
	rec.Write([]byte("x"))

	if rec.status != http.StatusOK {
		t.Errorf("implicit status = %d, want 200", rec.status)
	}
	if rec.source != SourceUnknown {
		t.Errorf("default source = %q, want unknown", rec.source)
	}
}

func TestTag_DirectAndThroughWrapper(t *testing.T) {
	rec := newRecorder(httptest.NewRecorder())

	Tag(rec, SourceStatic)
	if rec.source != SourceStatic {
		t.Errorf("source = %q, want static", rec.source)
	}

	// A user middleware may wrap the recorder; Tag must unwrap.
	wrapped := &unwrappingWriter{inner: rec}
	Tag(wrapped, SourceMock)
	TagTarget(wrapped, "http://localhost:9000/items")

	if rec.source != SourceMock {
		t.Errorf("source through wrapper = %q, want mock", rec.source)
	}
	if rec.target != "http://localhost:9000/items" {
		t.Errorf("target through wrapper = %q", rec.target)
	}
}

func TestTag_NoRecorderIsHarmless(t *testing.T) {
	// Tagging a plain writer must be a no-op, not a panic.
	Tag(httptest.NewRecorder(), SourceProxy)
	TagTarget(httptest.NewRecorder(), "http://x")
}

type unwrappingWriter struct {
	inner http.ResponseWriter
}

func (u *unwrappingWriter) Header() http.Header         { return u.inner.Header() }
func (u *unwrappingWriter) Write(p []byte) (int, error) { return u.inner.Write(p) }
func (u *unwrappingWriter) WriteHeader(status int)      { u.inner.WriteHeader(status) }
func (u *unwrappingWriter) Unwrap() http.ResponseWriter { return u.inner }
