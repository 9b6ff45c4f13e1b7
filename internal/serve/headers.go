package serve

import "net/http"

// Headers returns middleware that stamps the configured headers on every
// response. It runs before all content-producing handlers so a handler that
// sets the same header afterwards wins; the injected values are never
// re-stamped.
func Headers(headers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range headers {
				w.Header().Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
