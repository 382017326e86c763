package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestWriteJSON_NoEnvelope(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeJSON(w, http.StatusForbidden, compassError{Error: "insufficient_tokens", RequiresTokens: true})

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	body := decodeBody(t, w)
	if _, ok := body["success"]; ok {
		t.Error("writeJSON should not wrap the body")
	}
	if body["requiresTokens"] != true {
		t.Errorf("requiresTokens = %v, want true", body["requiresTokens"])
	}
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		wantData any
	}{
		{name: "object", status: http.StatusOK, data: map[string]int{"connectionTokens": 3}, wantData: map[string]any{"connectionTokens": float64(3)}},
		{name: "nil data", status: http.StatusCreated, data: nil, wantData: nil},
		{name: "string", status: http.StatusOK, data: "ok", wantData: "ok"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeBody(t, w)
			if body["success"] != true {
				t.Errorf("success = %v, want true", body["success"])
			}
			got, _ := json.Marshal(body["data"])
			want, _ := json.Marshal(tt.wantData)
			if string(got) != string(want) {
				t.Errorf("data = %s, want %s", got, want)
			}
			ts, _ := body["timestamp"].(string)
			if _, err := time.Parse(time.RFC3339, ts); err != nil {
				t.Errorf("timestamp %q is not RFC3339: %v", ts, err)
			}
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		message     string
		wantMessage string
	}{
		{name: "short message", message: "oidc not configured", wantMessage: "oidc not configured"},
		{name: "long message is truncated", message: strings.Repeat("x", 250), wantMessage: strings.Repeat("x", 200) + "..."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSONError(w, http.StatusServiceUnavailable, "login_unavailable", tt.message)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", w.Code)
			}
			body := decodeBody(t, w)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if body["error"] != "login_unavailable" {
				t.Errorf("error = %v, want login_unavailable", body["error"])
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMessage)
			}
		})
	}
}
