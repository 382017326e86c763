package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// mockLocker is a mock implementation of Locker
type mockLocker struct {
	acquireFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	return m.acquireFunc(ctx, key, ttl)
}

var _ Locker = (*mockLocker)(nil)

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	runErr := errors.New("boom")
	lockErr := errors.New("redis down")

	tests := []struct {
		name        string
		acquireErr  error
		runErr      error
		wantRan     bool
		wantErr     error
		wantRelease bool
	}{
		{name: "runs and keeps lock", wantRan: true},
		{name: "lock held skips", acquireErr: ErrLockHeld},
		{name: "lock error fails", acquireErr: lockErr, wantErr: lockErr},
		{name: "failed run releases lock", runErr: runErr, wantRan: true, wantErr: runErr, wantRelease: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var released, gotTTL atomic.Int64
			locker := &mockLocker{acquireFunc: func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
				if key != "task:refresh" {
					t.Errorf("lock key = %q", key)
				}
				gotTTL.Store(int64(ttl))
				if tt.acquireErr != nil {
					return nil, tt.acquireErr
				}
				return func(context.Context) error {
					released.Add(1)
					return nil
				}, nil
			}}

			runs := 0
			task := Task{Name: "refresh", Interval: 10 * time.Hour, Run: func(ctx context.Context) error {
				runs++
				return tt.runErr
			}}

			ran, err := NewScheduler(locker, nil).RunOnce(context.Background(), task)
			if ran != tt.wantRan || !errors.Is(err, tt.wantErr) || (err == nil) != (tt.wantErr == nil) {
				t.Errorf("RunOnce() = %v, %v, want %v, %v", ran, err, tt.wantRan, tt.wantErr)
			}
			if (runs == 1) != tt.wantRan {
				t.Errorf("task ran %d times", runs)
			}
			if (released.Load() == 1) != tt.wantRelease {
				t.Errorf("released %d times, want release %v", released.Load(), tt.wantRelease)
			}
			if time.Duration(gotTTL.Load()) != 9*time.Hour {
				t.Errorf("lock ttl = %v, want 9h", time.Duration(gotTTL.Load()))
			}
		})
	}
}

func TestScheduler_StartRunsUntilCancelled(t *testing.T) {
	t.Parallel()

	var runs atomic.Int64
	s := NewScheduler(nil, nil)
	s.Add(Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		LockTTL:  time.Nanosecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times before deadline", runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestLocalLocker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLocalLocker()

	release, err := l.Acquire(ctx, "k", time.Hour)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "k", time.Hour); !errors.Is(err, ErrLockHeld) {
		t.Errorf("second Acquire() error = %v, want ErrLockHeld", err)
	}
	if _, err := l.Acquire(ctx, "other", time.Hour); err != nil {
		t.Errorf("Acquire(other): %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "k", time.Hour); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestLocalLockerExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	l := &localLocker{held: make(map[string]localLease), now: func() time.Time { return now }}

	stale, err := l.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := l.Acquire(ctx, "k", time.Minute); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}

	// Releasing the expired lease must not free the new holder.
	if err := stale(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "k", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Errorf("Acquire() error = %v, want ErrLockHeld", err)
	}
}

func TestNewRedisLockerFromURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLockerFromURL(context.Background(), "not a url", "compass:"); err == nil {
		t.Error("expected parse error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisLockerFromURL(ctx, "redis://127.0.0.1:1/0", "compass:"); err == nil {
		t.Error("expected connection error for closed port")
	}
}
