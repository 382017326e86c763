package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/compass/internal/request"
	"github.com/benvon/compass/internal/services/oidc"
)

// LoginConfigProvider builds the frontend login configuration.
type LoginConfigProvider interface {
	GetLoginConfig(ctx context.Context, state string) (*oidc.LoginConfig, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	provider LoginConfigProvider
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(provider LoginConfigProvider) *AuthHandler {
	return &AuthHandler{provider: provider}
}

// RegisterRoutes registers public auth routes. The router should already
// have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oidc/login", h.GetOIDCLogin).Methods("GET")
}

// RegisterProtectedRoutes registers routes that need an authenticated user.
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// GetOIDCLogin returns OIDC configuration for frontend. A fresh state value
// is issued per call; the frontend stores it and checks it on callback.
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.provider.GetLoginConfig(r.Context(), uuid.NewString())
	if err != nil {
		respondJSONError(w, http.StatusServiceUnavailable, "login_unavailable", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, loginConfig)
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "User not found in context")
		return
	}

	respondJSON(w, http.StatusOK, user)
}
