package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	logpkg "github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/request"
	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/validation"
)

// SwipeLogger records swipes.
type SwipeLogger interface {
	LogSwipe(ctx context.Context, swiperID uuid.UUID, req compass.SwipeRequest) (*compass.SwipeOutcome, error)
}

// ProfileManager owns DNA and vector initialization.
type ProfileManager interface {
	UpsertDNA(ctx context.Context, userID uuid.UUID, interests []models.Interest, discoverable bool) (*models.TasteProfile, error)
	InitializeVector(ctx context.Context, userID uuid.UUID) (*compass.InitResult, error)
	Status(ctx context.Context, userID uuid.UUID) (*compass.VectorStatus, error)
}

// CompassHandler serves the swipe and vector endpoints.
type CompassHandler struct {
	swipes   SwipeLogger
	profiles ProfileManager
	logger   *zap.Logger
}

// NewCompassHandler creates a new compass handler
func NewCompassHandler(swipes SwipeLogger, profiles ProfileManager, logger *zap.Logger) *CompassHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompassHandler{swipes: swipes, profiles: profiles, logger: logger}
}

// RegisterRoutes registers compass routes on the given router
// The router should already have the /api/v1/compass prefix
func (h *CompassHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/swipe", h.Swipe).Methods("POST")
	r.HandleFunc("/vector/initialize", h.InitializeVector).Methods("POST")
	r.HandleFunc("/vector/status", h.VectorStatus).Methods("GET")
	r.HandleFunc("/profile", h.UpdateProfile).Methods("PUT")
}

// SwipeResponse is the body of a successful swipe.
type SwipeResponse struct {
	Success         bool `json:"success"`
	RemainingTokens *int `json:"remainingTokens,omitempty"`
}

// InitializeResponse is the body of a successful vector initialization.
type InitializeResponse struct {
	Success          bool `json:"success"`
	VectorDimension  int  `json:"vectorDimension"`
	ConnectionTokens int  `json:"connectionTokens"`
}

// ProfileRequest replaces the caller's declared DNA.
type ProfileRequest struct {
	DeclaredInterests []models.Interest `json:"declaredInterests" validate:"max=50"`
	Discoverable      *bool             `json:"discoverable"`
}

// ProfileResponse echoes the stored DNA.
type ProfileResponse struct {
	Success           bool              `json:"success"`
	DeclaredInterests []models.Interest `json:"declaredInterests"`
	Discoverable      bool              `json:"discoverable"`
	ConnectionTokens  int               `json:"connectionTokens"`
}

// compassError is the error body every compass endpoint returns.
type compassError struct {
	Error          string `json:"error"`
	Reason         string `json:"reason,omitempty"`
	RequiresTokens bool   `json:"requiresTokens,omitempty"`
}

// Swipe handles POST /swipe
func (h *CompassHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, compassError{Error: "Unauthorized"})
		return
	}

	var req compass.SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, compassError{Error: "Invalid request body", Reason: compass.ReasonMissingFields})
		return
	}

	outcome, err := h.swipes.LogSwipe(r.Context(), user.ID, req)
	if err != nil {
		h.respondCompassError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SwipeResponse{Success: true, RemainingTokens: outcome.RemainingTokens})
}

// InitializeVector handles POST /vector/initialize
func (h *CompassHandler) InitializeVector(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, compassError{Error: "Unauthorized"})
		return
	}

	result, err := h.profiles.InitializeVector(r.Context(), user.ID)
	if err != nil {
		h.respondCompassError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, InitializeResponse{
		Success:          true,
		VectorDimension:  result.VectorDimension,
		ConnectionTokens: result.ConnectionTokens,
	})
}

// VectorStatus handles GET /vector/status
func (h *CompassHandler) VectorStatus(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, compassError{Error: "Unauthorized"})
		return
	}

	status, err := h.profiles.Status(r.Context(), user.ID)
	if err != nil {
		h.respondCompassError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// UpdateProfile handles PUT /profile
func (h *CompassHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, compassError{Error: "Unauthorized"})
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, compassError{Error: "Invalid request body"})
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, compassError{Error: "Too many interests", Reason: compass.ReasonInvalidInterest})
		return
	}
	discoverable := true
	if req.Discoverable != nil {
		discoverable = *req.Discoverable
	}

	profile, err := h.profiles.UpsertDNA(r.Context(), user.ID, req.DeclaredInterests, discoverable)
	if err != nil {
		h.respondCompassError(w, r, err)
		return
	}

	interests := profile.DeclaredInterests
	if interests == nil {
		interests = []models.Interest{}
	}
	writeJSON(w, http.StatusOK, ProfileResponse{
		Success:           true,
		DeclaredInterests: interests,
		Discoverable:      profile.Discoverable,
		ConnectionTokens:  profile.TokenBalance,
	})
}

// respondCompassError maps engine errors onto status codes.
func (h *CompassHandler) respondCompassError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *compass.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, compassError{Error: verr.Message, Reason: verr.Reason})
	case errors.Is(err, compass.ErrInsufficientTokens):
		writeJSON(w, http.StatusForbidden, compassError{Error: "No connection tokens remaining", RequiresTokens: true})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, compassError{Error: "Profile not found"})
	case store.IsTransient(err):
		h.logger.Warn("compass_request_transient_failure",
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("user_id", request.UserID(r)),
			zap.Error(err),
		)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, compassError{Error: "Temporarily unavailable, retry"})
	default:
		h.logger.Error("compass_request_failed",
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("user_id", request.UserID(r)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, compassError{Error: "Internal Server Error"})
	}
}
