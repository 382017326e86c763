package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logpkg "github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/request"
	"github.com/benvon/compass/internal/store"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

// UserStore finds or records the local user behind a provider subject.
type UserStore interface {
	GetUserByProviderID(ctx context.Context, providerID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth creates authentication middleware that validates JWT tokens. The
// first request from a new subject creates its user row.
func Auth(verifier TokenVerifier, users UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, r, http.StatusUnauthorized, "missing_token", "Missing Authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				respondError(w, r, http.StatusUnauthorized, "invalid_token", "Authorization header must be a Bearer token")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, strings.TrimSpace(tokenString))
			if err != nil {
				logger.Info("token_verification_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondError(w, r, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}

			user, err := resolveUser(ctx, users, claims)
			if err != nil {
				logger.Error("user_lookup_failed",
					zap.String("provider_id", logpkg.SanitizeUserID(claims.Subject)),
					zap.Error(err),
				)
				status := http.StatusInternalServerError
				if store.IsTransient(err) {
					status = http.StatusServiceUnavailable
				}
				respondError(w, r, status, "user_unavailable", "Failed to resolve user")
				return
			}

			reportUser(ctx, user.ID.String())
			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func resolveUser(ctx context.Context, users UserStore, claims *models.Identity) (*models.User, error) {
	user, err := users.GetUserByProviderID(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	sub := claims.Subject
	user = &models.User{
		ID:            uuid.New(),
		Email:         claims.Email,
		ProviderID:    &sub,
		EmailVerified: true,
	}
	if claims.Name != "" {
		name := claims.Name
		user.DisplayName = &name
	}
	if err := users.CreateUser(ctx, user); err != nil {
		// A concurrent first request may have created it.
		if existing, getErr := users.GetUserByProviderID(ctx, claims.Subject); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}
