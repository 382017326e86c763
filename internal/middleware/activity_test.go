package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/request"
)

type mockToucher struct {
	mu        sync.Mutex
	touched   []uuid.UUID
	touchFunc func(ctx context.Context, userID uuid.UUID) error
}

func (m *mockToucher) TouchActivity(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	m.touched = append(m.touched, userID)
	m.mu.Unlock()
	if m.touchFunc != nil {
		return m.touchFunc(ctx, userID)
	}
	return nil
}

func (m *mockToucher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.touched)
}

func TestActivityTracker(t *testing.T) {
	t.Parallel()

	toucher := &mockToucher{}
	tracker := NewActivityTracker(toucher, time.Minute, zap.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serve := func(user *models.User) {
		req := httptest.NewRequest("GET", "/api/v1/compass/vector/status", nil)
		if user != nil {
			req = req.WithContext(request.WithUser(req.Context(), user))
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	alice := &models.User{ID: uuid.New()}
	bob := &models.User{ID: uuid.New()}

	serve(nil)
	if got := toucher.count(); got != 0 {
		t.Fatalf("anonymous request touched %d users", got)
	}

	serve(alice)
	serve(alice)
	serve(bob)
	if got := toucher.count(); got != 2 {
		t.Errorf("touches within interval = %d, want 2", got)
	}

	now = now.Add(time.Minute)
	serve(alice)
	if got := toucher.count(); got != 3 {
		t.Errorf("touches after interval = %d, want 3", got)
	}
}

func TestActivityTracker_FailureRetriesNextRequest(t *testing.T) {
	t.Parallel()

	fail := true
	toucher := &mockToucher{touchFunc: func(context.Context, uuid.UUID) error {
		if fail {
			return errors.New("db down")
		}
		return nil
	}}
	tracker := NewActivityTracker(toucher, time.Hour, zap.NewNop())
	handler := tracker.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	user := &models.User{ID: uuid.New()}
	req := httptest.NewRequest("GET", "/", nil).WithContext(request.WithUser(context.Background(), user))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite touch failure", w.Code)
	}

	fail = false
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got := toucher.count(); got != 2 {
		t.Errorf("touch attempts = %d, want 2", got)
	}
}
