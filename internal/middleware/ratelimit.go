package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	logpkg "github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/request"
)

const (
	defaultRatelimitRate = "20-S"
	rateLimitPrefix      = "compass:ratelimit"
)

// NewRateLimitStore returns a Redis backed limiter store, or an in-memory
// one when client is nil.
func NewRateLimitStore(client *redis.Client) (limiter.Store, error) {
	opts := limiter.StoreOptions{Prefix: rateLimitPrefix}
	if client == nil {
		return memory.NewStoreWithOptions(opts), nil
	}
	s, err := redisstore.NewStoreWithOptions(client, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return s, nil
}

// RateLimit limits requests per user, or per client IP for anonymous
// requests, at rate in ulule format ("20-S", "1000-H"). Mount it after
// Auth so authenticated traffic is keyed on the user.
func RateLimit(s limiter.Store, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = defaultRatelimitRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	instance := limiter.New(s, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(rateLimitKey),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("rate_limit_store_failed",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Error(err),
			)
			respondError(w, r, http.StatusServiceUnavailable, "rate_limiter_unavailable", "Rate limiter unavailable")
		}),
	)
	return mw.Handler, nil
}

func rateLimitKey(r *http.Request) string {
	if id := request.UserID(r); id != "" {
		return "user:" + id
	}
	return "ip:" + request.ClientIP(r)
}
