package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantLogged bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "panic with string",
			handler:    func(http.ResponseWriter, *http.Request) { panic("boom") },
			wantStatus: http.StatusInternalServerError,
			wantLogged: true,
		},
		{
			name: "runtime panic",
			handler: func(http.ResponseWriter, *http.Request) {
				var balances map[string]int
				balances["tokens"] = 1
			},
			wantStatus: http.StatusInternalServerError,
			wantLogged: true,
		},
		{
			name:       "panic with error",
			handler:    func(http.ResponseWriter, *http.Request) { panic(errors.New("store exploded")) },
			wantStatus: http.StatusInternalServerError,
			wantLogged: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.ErrorLevel)
			req := httptest.NewRequest("POST", "/api/v1/compass/swipe", nil)
			req.Header.Set("X-Request-ID", "req-42")
			w := httptest.NewRecorder()

			RequestID(ErrorHandler(zap.New(core))(tt.handler)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := logs.FilterMessage("panic_recovered").Len(); (got == 1) != tt.wantLogged {
				t.Errorf("panic_recovered logged %d times, want logged=%t", got, tt.wantLogged)
			}
			if !tt.wantLogged {
				return
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			var body ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Success || body.Error != "internal_error" || body.Timestamp == "" {
				t.Errorf("body = %+v, want internal_error with timestamp", body)
			}
			if body.RequestID != "req-42" {
				t.Errorf("requestId = %q, want req-42", body.RequestID)
			}
		})
	}
}

func TestErrorHandler_RepanicsOnAbort(t *testing.T) {
	t.Parallel()

	handler := ErrorHandler(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Error("ServeHTTP returned without panicking")
}
