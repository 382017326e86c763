package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const profileColumns = `user_id, declared_interests, preference_vector, discoverable, last_active_ts,
	token_balance, token_refreshed_ts, vector_initialized_ts, created_ts, updated_ts`

// getProfile has no lock variant: the single connection already gives a
// transaction exclusive access.
func getProfile(ctx context.Context, q querier, userID uuid.UUID) (*models.TasteProfile, error) {
	var (
		p                                  models.TasteProfile
		interests                          string
		vector                             sql.NullString
		lastActive, refreshed, initialized sql.NullInt64
		created, updated                   int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM compass_profiles WHERE user_id = ?`, userID).Scan(
		&p.UserID,
		&interests,
		&vector,
		&p.Discoverable,
		&lastActive,
		&p.TokenBalance,
		&refreshed,
		&initialized,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get profile: %w", err))
	}

	if interests != "" {
		if err := json.Unmarshal([]byte(interests), &p.DeclaredInterests); err != nil {
			return nil, fmt.Errorf("decode declared interests: %w", err)
		}
	}
	if vector.Valid && vector.String != "" {
		if err := json.Unmarshal([]byte(vector.String), &p.PreferenceVector); err != nil {
			return nil, fmt.Errorf("decode preference vector: %w", err)
		}
	}
	p.LastActiveAt = fromNullTS(lastActive)
	p.TokenRefreshedAt = fromNullTS(refreshed)
	p.VectorInitializedAt = fromNullTS(initialized)
	p.CreatedAt = fromTS(created)
	p.UpdatedAt = fromTS(updated)
	return &p, nil
}

func vectorValue(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode preference vector: %w", err)
	}
	return string(raw), nil
}

func interestsValue(in []models.Interest) (string, error) {
	if in == nil {
		in = []models.Interest{}
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode declared interests: %w", err)
	}
	return string(raw), nil
}

// GetProfile implements store.Store.
func (d *DB) GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, d.db, userID)
}

// LockProfile implements store.Tx.
func (t *Tx) LockProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, t.tx, userID)
}

// GetProfile implements store.Tx.
func (t *Tx) GetProfile(ctx context.Context, userID uuid.UUID) (*models.TasteProfile, error) {
	return getProfile(ctx, t.tx, userID)
}

// CreateProfile implements store.Tx.
func (t *Tx) CreateProfile(ctx context.Context, p *models.TasteProfile) error {
	interests, err := interestsValue(p.DeclaredInterests)
	if err != nil {
		return err
	}
	vector, err := vectorValue(p.PreferenceVector)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO compass_profiles (user_id, declared_interests, preference_vector, discoverable,
			last_active_ts, token_balance, token_refreshed_ts, vector_initialized_ts, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.UserID,
		interests,
		vector,
		p.Discoverable,
		nullTS(p.LastActiveAt),
		p.TokenBalance,
		nullTS(p.TokenRefreshedAt),
		nullTS(p.VectorInitializedAt),
		ts(now),
		ts(now),
	)
	if err != nil {
		return classify(fmt.Errorf("create profile: %w", err))
	}
	p.CreatedAt = fromTS(ts(now))
	p.UpdatedAt = p.CreatedAt
	return nil
}

// UpdateDNA implements store.Tx.
func (t *Tx) UpdateDNA(ctx context.Context, userID uuid.UUID, interests []models.Interest, discoverable bool) error {
	raw, err := interestsValue(interests)
	if err != nil {
		return err
	}
	return t.execOne(ctx, "update profile DNA", `
		UPDATE compass_profiles SET declared_interests = ?, discoverable = ?, updated_ts = ? WHERE user_id = ?
	`, raw, discoverable, ts(time.Now()), userID)
}

// SetTokenBalance implements store.Tx.
func (t *Tx) SetTokenBalance(ctx context.Context, userID uuid.UUID, balance int, refreshedAt *time.Time) error {
	return t.execOne(ctx, "set token balance", `
		UPDATE compass_profiles
		SET token_balance = ?, token_refreshed_ts = COALESCE(?, token_refreshed_ts), updated_ts = ?
		WHERE user_id = ?
	`, balance, nullTS(refreshedAt), ts(time.Now()), userID)
}

// SetPreferenceVector implements store.Tx.
func (t *Tx) SetPreferenceVector(ctx context.Context, userID uuid.UUID, vector []float32, initializedAt *time.Time) error {
	raw, err := vectorValue(vector)
	if err != nil {
		return err
	}
	return t.execOne(ctx, "set preference vector", `
		UPDATE compass_profiles
		SET preference_vector = ?, vector_initialized_ts = COALESCE(?, vector_initialized_ts), updated_ts = ?
		WHERE user_id = ?
	`, raw, nullTS(initializedAt), ts(time.Now()), userID)
}

// TouchActivity implements store.Tx.
func (t *Tx) TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return t.execOne(ctx, "touch activity", `
		UPDATE compass_profiles SET last_active_ts = ?, updated_ts = ? WHERE user_id = ?
	`, ts(at), ts(at), userID)
}

func (t *Tx) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(fmt.Errorf("%s: %w", op, err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
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
		WHERE discoverable = 1 AND last_active_ts >= ? AND user_id > ?
		ORDER BY user_id
		LIMIT ?
	`, ts(activeSince), after, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list refresh candidates: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan refresh candidate: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
