package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		driver    string
		expectErr bool
	}{
		{name: "sqlite", driver: "sqlite"},
		{name: "unknown driver", driver: "mysql", expectErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dsn := filepath.Join(t.TempDir(), "compass.db")
			s, err := Open(context.Background(), tt.driver, dsn)
			if tt.expectErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer func() { _ = s.Close() }()
			if err := s.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}
