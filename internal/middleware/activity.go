package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/request"
)

// DefaultActivityInterval bounds how often one user's last-active time is
// written.
const DefaultActivityInterval = 5 * time.Minute

// ActivityToucher records that a user was active.
type ActivityToucher interface {
	TouchActivity(ctx context.Context, userID uuid.UUID) error
}

// ActivityTracker stamps last-active times for authenticated requests, at
// most once per interval per user. The refresher only credits users seen
// inside its active window.
type ActivityTracker struct {
	toucher  ActivityToucher
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	touched map[uuid.UUID]time.Time
}

// NewActivityTracker creates a tracker. A non-positive interval means
// DefaultActivityInterval.
func NewActivityTracker(toucher ActivityToucher, interval time.Duration, logger *zap.Logger) *ActivityTracker {
	if interval <= 0 {
		interval = DefaultActivityInterval
	}
	return &ActivityTracker{
		toucher:  toucher,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		touched:  make(map[uuid.UUID]time.Time),
	}
}

// Middleware must be mounted after Auth.
func (at *ActivityTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := request.UserFromContext(r); user != nil && at.due(user.ID) {
			if err := at.toucher.TouchActivity(r.Context(), user.ID); err != nil {
				// Don't fail the request if activity tracking fails
				at.logger.Warn("activity_touch_failed",
					zap.String("user_id", user.ID.String()),
					zap.Error(err),
				)
				at.forget(user.ID)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (at *ActivityTracker) due(userID uuid.UUID) bool {
	at.mu.Lock()
	defer at.mu.Unlock()

	now := at.now()
	if last, ok := at.touched[userID]; ok && now.Sub(last) < at.interval {
		return false
	}
	if len(at.touched) > 100_000 {
		for id, last := range at.touched {
			if now.Sub(last) >= at.interval {
				delete(at.touched, id)
			}
		}
	}
	at.touched[userID] = now
	return true
}

func (at *ActivityTracker) forget(userID uuid.UUID) {
	at.mu.Lock()
	delete(at.touched, userID)
	at.mu.Unlock()
}
