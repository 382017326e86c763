package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const profileColumns = `user_id, declared_interests, preference_vector, discoverable, last_active_at,
	token_balance, token_refreshed_at, vector_initialized_at, created_at, updated_at`

func getProfile(ctx context.Context, q querier, userID uuid.UUID, forUpdate bool) (*models.TasteProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM compass_profiles WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		p         models.TasteProfile
		interests []byte
		vector    *pgvector.Vector
	)
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID,
		&interests,
		&vector,
		&p.Discoverable,
		&p.LastActiveAt,
		&p.TokenBalance,
		&p.TokenRefreshedAt,
		&p.VectorInitializedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get profile: %w", err))
	}

	if len(interests) > 0 {
		if err := json.Unmarshal(interests, &p.DeclaredInterests); err != nil {
			return nil, fmt.Errorf("failed to decode declared interests: %w", err)
		}
	}
	if vector != nil {
		p.PreferenceVector = vector.Slice()
	}
	return &p, nil
}

// vectorValue maps an absent vector to NULL so a profile never carries an
// empty vector column.
func vectorValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

// GetProfile implements store.Store.
func (d *DB) GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, d.db, userID, false)
}

// LockProfile implements store.Tx.
func (t *Tx) LockProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, t.tx, userID, true)
}

// GetProfile implements store.Tx.
func (t *Tx) GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, t.tx, userID, false)
}

// CreateProfile implements store.Tx.
func (t *Tx) CreateProfile(ctx context.Context, p *models.TasteProfile) error {
	interests, err := json.Marshal(nonNilInterests(p.DeclaredInterests))
	if err != nil {
		return fmt.Errorf("failed to encode declared interests: %w", err)
	}

	query := `
		INSERT INTO compass_profiles (user_id, declared_interests, preference_vector, discoverable,
			last_active_at, token_balance, token_refreshed_at, vector_initialized_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	now := time.Now().UTC()
	err = t.tx.QueryRowContext(ctx, query,
		p.UserID,
		interests,
		vectorValue(p.PreferenceVector),
		p.Discoverable,
		p.LastActiveAt,
		p.TokenBalance,
		p.TokenRefreshedAt,
		p.VectorInitializedAt,
		now,
		now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("failed to create profile: %w", err))
	}
	return nil
}

// UpdateDNA implements store.Tx.
func (t *Tx) UpdateDNA(ctx context.Context, userID uuid.UUID, interests []models.Interest, discoverable bool) error {
	raw, err := json.Marshal(nonNilInterests(interests))
	if err != nil {
		return fmt.Errorf("failed to encode declared interests: %w", err)
	}
	return t.execOne(ctx, "update profile DNA", `
		UPDATE compass_profiles
		SET declared_interests = $2, discoverable = $3, updated_at = $4
		WHERE user_id = $1
	`, userID, raw, discoverable, time.Now().UTC())
}

// SetTokenBalance implements store.Tx.
func (t *Tx) SetTokenBalance(ctx context.Context, userID uuid.UUID, balance int, refreshedAt *time.Time) error {
	return t.execOne(ctx, "set token balance", `
		UPDATE compass_profiles
		SET token_balance = $2, token_refreshed_at = COALESCE($3, token_refreshed_at), updated_at = $4
		WHERE user_id = $1
	`, userID, balance, refreshedAt, time.Now().UTC())
}

// SetPreferenceVector implements store.Tx.
func (t *Tx) SetPreferenceVector(ctx context.Context, userID uuid.UUID, vector []float32, initializedAt *time.Time) error {
	return t.execOne(ctx, "set preference vector", `
		UPDATE compass_profiles
		SET preference_vector = $2, vector_initialized_at = COALESCE($3, vector_initialized_at), updated_at = $4
		WHERE user_id = $1
	`, userID, vectorValue(vector), initializedAt, time.Now().UTC())
}

// TouchActivity implements store.Tx.
func (t *Tx) TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return t.execOne(ctx, "touch activity", `
		UPDATE compass_profiles SET last_active_at = $2, updated_at = $2 WHERE user_id = $1
	`, userID, at.UTC())
}

func (t *Tx) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(fmt.Errorf("failed to %s: %w", op, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

// ListRefreshCandidates implements store.Store.
func (d *DB) ListRefreshCandidates(ctx context.Context, activeSince time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT user_id FROM compass_profiles
		WHERE discoverable AND last_active_at >= $1 AND user_id > $2
		ORDER BY user_id
		LIMIT $3
	`, activeSince.UTC(), after, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list refresh candidates: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan refresh candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nonNilInterests(in []models.Interest) []models.Interest {
	if in == nil {
		return []models.Interest{}
	}
	return in
}
