package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/request"
)

// RequestID tags every request with an id, echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := request.EnsureRequestID(r)
		w.Header().Set(request.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(request.WithRequestID(r.Context(), id)))
	})
}

// Logging creates logging middleware
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := newStatusRecorder(w)
			// Auth runs further down the chain; it reports the user back here.
			var userID string
			r = r.WithContext(withUserSink(r.Context(), &userID))

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", request.RequestID(r.Context())),
			}
			if userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}

			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				logger.Error("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type userSinkKey struct{}

func withUserSink(ctx context.Context, userID *string) context.Context {
	return context.WithValue(ctx, userSinkKey{}, userID)
}

// reportUser hands the authenticated user id to an enclosing Logging.
func reportUser(ctx context.Context, userID string) {
	if sink, ok := ctx.Value(userSinkKey{}).(*string); ok {
		*sink = userID
	}
}
