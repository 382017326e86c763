package middleware

import (
	"net/http"
	"time"
)

// DefaultRequestTimeout applies when Timeout is given a non-positive value.
const DefaultRequestTimeout = 30 * time.Second

const timeoutBody = `{"success":false,"error":"request_timeout","message":"Request timed out"}`

// Timeout caps handler time. The handler's context is cancelled at the
// deadline, so store calls in flight return and surface as transient errors.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
