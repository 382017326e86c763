// Package storetest provides throwaway SQLite stores and fixtures for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/store/sqlite"
)

// New opens a migrated SQLite store in t's temp dir and closes it on cleanup.
func New(t testing.TB) *sqlite.DB {
	t.Helper()

	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "compass.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ProfileOption adjusts a seeded profile before it is written.
type ProfileOption func(*models.TasteProfile)

// WithTokens sets the starting balance.
func WithTokens(n int) ProfileOption {
	return func(p *models.TasteProfile) { p.TokenBalance = n }
}

// WithVector sets the starting preference vector.
func WithVector(v []float32) ProfileOption {
	return func(p *models.TasteProfile) {
		p.PreferenceVector = v
		now := time.Now().UTC()
		p.VectorInitializedAt = &now
	}
}

// WithInterests sets the declared interests.
func WithInterests(in ...models.Interest) ProfileOption {
	return func(p *models.TasteProfile) { p.DeclaredInterests = in }
}

// WithDiscoverable sets the visibility toggle.
func WithDiscoverable(d bool) ProfileOption {
	return func(p *models.TasteProfile) { p.Discoverable = d }
}

// WithLastActive sets lastActiveAt.
func WithLastActive(at time.Time) ProfileOption {
	return func(p *models.TasteProfile) { p.LastActiveAt = &at }
}

// SeedUser creates a user row only.
func SeedUser(t testing.TB, s store.Store) uuid.UUID {
	t.Helper()

	id := uuid.New()
	provider := "test|" + id.String()
	user := &models.User{ID: id, Email: id.String() + "@example.com", ProviderID: &provider}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return id
}

// SeedProfile creates a user and a discoverable profile with no tokens.
func SeedProfile(t testing.TB, s store.Store, opts ...ProfileOption) uuid.UUID {
	t.Helper()

	id := SeedUser(t, s)
	p := &models.TasteProfile{UserID: id, Discoverable: true}
	for _, opt := range opts {
		opt(p)
	}
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateProfile(context.Background(), p)
	})
	if err != nil {
		t.Fatalf("failed to seed profile: %v", err)
	}
	return id
}

// Profile reads a profile or fails the test.
func Profile(t testing.TB, s store.Store, id uuid.UUID) *models.TasteProfile {
	t.Helper()

	p, err := s.GetProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to read profile %s: %v", id, err)
	}
	return p
}
