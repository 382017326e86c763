package middleware

import (
	"net/http"
)

// DefaultMaxRequestSize bounds request bodies. A swipe or an interest list
// fits comfortably in 64KiB.
const DefaultMaxRequestSize int64 = 64 << 10

// MaxRequestSize rejects bodies that declare more than maxBytes and caps
// the rest with http.MaxBytesReader, so a chunked body that overruns fails
// at decode time instead.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large")
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
