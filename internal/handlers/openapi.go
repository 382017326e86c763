package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// DefaultOpenAPIPath is where the server looks for the API description
// relative to its working directory.
const DefaultOpenAPIPath = "api/openapi/openapi.yaml"

// OpenAPIHandler handles OpenAPI specification requests
type OpenAPIHandler struct {
	openAPIPath string
}

// NewOpenAPIHandler creates an OpenAPI handler. The path is resolved once;
// requests never influence which file is read.
func NewOpenAPIHandler(openAPIPath string) (*OpenAPIHandler, error) {
	if openAPIPath == "" {
		openAPIPath = DefaultOpenAPIPath
	}
	absPath, err := filepath.Abs(filepath.Clean(openAPIPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve OpenAPI path: %w", err)
	}
	return &OpenAPIHandler{openAPIPath: absPath}, nil
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/openapi.json", h.ServeJSON).Methods("GET")
}

// ServeYAML serves the OpenAPI spec in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.openAPIPath)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "not_found", "OpenAPI specification not found")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(data)
}

// ServeJSON serves the OpenAPI spec converted to JSON
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.openAPIPath)
	if err != nil {
		respondJSONError(w, http.StatusNotFound, "not_found", "OpenAPI specification not found")
		return
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to parse OpenAPI specification")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}
