package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/request"
)

// ErrorResponse is the body middleware writes when it rejects a request.
// Error is a stable snake_case code; Message is for humans.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorHandler turns handler panics into a 500. http.ErrAbortHandler is
// re-raised so net/http can drop the connection as intended.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
					zap.String("user_id", request.UserID(r)),
					zap.String("request_id", request.RequestID(r.Context())),
				)
				respondError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// respondError writes an ErrorResponse. The request id is echoed so a
// client can quote it when reporting a failure.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success:   false,
		Error:     code,
		Message:   message,
		RequestID: request.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
