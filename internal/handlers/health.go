package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency the extended health check probes.
type Pinger func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks map[string]Pinger
	order  []string
	logger *zap.Logger
}

// NewHealthChecker creates a health checker that always probes the store.
func NewHealthChecker(storePing Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HealthChecker{checks: make(map[string]Pinger), logger: logger}
	h.AddCheck("database", storePing)
	return h
}

// AddCheck registers another dependency. A nil ping is ignored so optional
// dependencies can be passed unconditionally.
func (h *HealthChecker) AddCheck(name string, ping Pinger) {
	if ping == nil {
		return
	}
	if _, exists := h.checks[name]; !exists {
		h.order = append(h.order, name)
	}
	h.checks[name] = ping
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	// Basic mode only reports that the server is running.
	if r.URL.Query().Get("mode") != "extended" {
		writeJSON(w, http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response.Checks = make(map[string]string, len(h.order))
	for _, name := range h.order {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health_check_failed", zap.String("check", name), zap.Error(err))
			response.Status = "unhealthy"
			response.Checks[name] = "unhealthy"
			continue
		}
		response.Checks[name] = "healthy"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}
