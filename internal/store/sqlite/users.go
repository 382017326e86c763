package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
)

// CreateUser implements store.Store.
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, email, provider_id, name, email_verified, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.ProviderID, user.DisplayName, user.EmailVerified, ts(now), ts(now))
	if err != nil {
		return classify(fmt.Errorf("create user: %w", err))
	}
	user.CreatedAt = fromTS(ts(now))
	user.UpdatedAt = user.CreatedAt
	return nil
}

// GetUserByProviderID implements store.Store.
func (d *DB) GetUserByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	var (
		user             models.User
		created, updated int64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, email, provider_id, name, email_verified, created_ts, updated_ts
		FROM users WHERE provider_id = ?
	`, providerID).Scan(
		&user.ID,
		&user.Email,
		&user.ProviderID,
		&user.DisplayName,
		&user.EmailVerified,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get user by provider ID: %w", err))
	}
	user.CreatedAt = fromTS(created)
	user.UpdatedAt = fromTS(updated)
	return &user, nil
}
