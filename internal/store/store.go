// Package store defines the persistence contract of the Compass engine.
//
// Every mutation of a profile's token balance or preference vector happens
// inside Store.WithTx on a row obtained from Tx.LockProfile, so concurrent
// writers for the same user serialize on the store's transaction mechanism.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/compass/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures the caller may retry with backoff:
	// lock contention, serialization failures, timeouts.
	ErrTransient = errors.New("transient store error")
)

// SeenCandidate is one entry of a user's dedup set.
type SeenCandidate struct {
	CandidateID uuid.UUID
	SeenAt      time.Time
}

// PendingRequest is an incoming connect waiting on the target.
type PendingRequest struct {
	RequesterID uuid.UUID
	CreatedAt   time.Time
}

// Store is implemented by each database driver.
type Store interface {
	// WithTx runs fn in a single transaction. fn's error rolls the
	// transaction back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error)
	GetSwipeEvent(ctx context.Context, id uuid.UUID) (*models.SwipeEvent, error)
	ListSwipes(ctx context.Context, swiperID uuid.UUID) ([]*models.SwipeEvent, error)
	ListSeen(ctx context.Context, userID uuid.UUID) ([]SeenCandidate, error)
	ListPendingRequests(ctx context.Context, targetID uuid.UUID) ([]PendingRequest, error)
	// ResetSeen clears a user's dedup set and reports how many entries
	// were removed.
	ResetSeen(ctx context.Context, userID uuid.UUID) (int64, error)

	// ListRefreshCandidates returns discoverable users active at or after
	// activeSince, ordered by id, strictly after the given cursor.
	ListRefreshCandidates(ctx context.Context, activeSince time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
	// ListUnlearnedSwipes returns swipes with no learned marker created
	// before the given time, oldest first.
	ListUnlearnedSwipes(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SwipeEvent, error)

	// InsertLearningMetric writes at most one metric per event id.
	InsertLearningMetric(ctx context.Context, metric *models.LearningMetric) error
	ListLearningMetrics(ctx context.Context, userID uuid.UUID) ([]*models.LearningMetric, error)

	GetUserByProviderID(ctx context.Context, providerID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transactional view handed to Store.WithTx callbacks.
type Tx interface {
	// LockProfile reads the profile and holds a write lock on it until the
	// transaction ends.
	LockProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error)
	// GetProfile reads a profile without locking it.
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error)
	CreateProfile(ctx context.Context, profile *models.TasteProfile) error
	UpdateDNA(ctx context.Context, userID uuid.UUID, interests []models.Interest, discoverable bool) error

	SetTokenBalance(ctx context.Context, userID uuid.UUID, balance int, refreshedAt *time.Time) error
	SetPreferenceVector(ctx context.Context, userID uuid.UUID, vector []float32, initializedAt *time.Time) error
	TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error

	AppendSwipe(ctx context.Context, event *models.SwipeEvent) error
	// MarkSeen records candidateID in userID's seen set and reports
	// whether it was new. Re-adding an existing id keeps the first
	// timestamp.
	MarkSeen(ctx context.Context, userID, candidateID uuid.UUID, at time.Time) (bool, error)
	AddPendingRequest(ctx context.Context, targetID, requesterID uuid.UUID, at time.Time) error
	// ClaimSwipe sets the learned marker on an event that has none and
	// reports whether this call set it.
	ClaimSwipe(ctx context.Context, eventID uuid.UUID, at time.Time) (bool, error)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}
