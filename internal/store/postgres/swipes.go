package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
)

const swipeColumns = `id, swiper_id, target_id, action, created_at, learned_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSwipe(s scanner) (*models.SwipeEvent, error) {
	var e models.SwipeEvent
	if err := s.Scan(&e.ID, &e.SwiperID, &e.TargetID, &e.Action, &e.CreatedAt, &e.LearnedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// AppendSwipe implements store.Tx.
func (t *Tx) AppendSwipe(ctx context.Context, e *models.SwipeEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO swipe_events (id, swiper_id, target_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.SwiperID, e.TargetID, e.Action, e.CreatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("failed to append swipe: %w", err))
	}
	return nil
}

// MarkSeen implements store.Tx.
func (t *Tx) MarkSeen(ctx context.Context, userID, candidateID uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO seen_candidates (user_id, candidate_id, seen_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, candidate_id) DO NOTHING
	`, userID, candidateID, at.UTC())
	if err != nil {
		return false, classify(fmt.Errorf("failed to mark candidate seen: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// AddPendingRequest implements store.Tx.
func (t *Tx) AddPendingRequest(ctx context.Context, targetID, requesterID uuid.UUID, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO connection_requests (target_id, requester_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (target_id, requester_id) DO NOTHING
	`, targetID, requesterID, at.UTC())
	if err != nil {
		return classify(fmt.Errorf("failed to add pending request: %w", err))
	}
	return nil
}

// ClaimSwipe implements store.Tx.
func (t *Tx) ClaimSwipe(ctx context.Context, eventID uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE swipe_events SET learned_at = $2 WHERE id = $1 AND learned_at IS NULL
	`, eventID, at.UTC())
	if err != nil {
		return false, classify(fmt.Errorf("failed to claim swipe: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// GetSwipeEvent implements store.Store.
func (d *DB) GetSwipeEvent(ctx context.Context, id uuid.UUID) (*models.SwipeEvent, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+swipeColumns+` FROM swipe_events WHERE id = $1`, id)
	e, err := scanSwipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("swipe event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get swipe event: %w", err))
	}
	return e, nil
}

// ListSwipes implements store.Store.
func (d *DB) ListSwipes(ctx context.Context, swiperID uuid.UUID) ([]*models.SwipeEvent, error) {
	return d.listSwipes(ctx, `SELECT `+swipeColumns+` FROM swipe_events WHERE swiper_id = $1 ORDER BY created_at, id`, swiperID)
}

// ListUnlearnedSwipes implements store.Store.
func (d *DB) ListUnlearnedSwipes(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SwipeEvent, error) {
	return d.listSwipes(ctx, `
		SELECT `+swipeColumns+` FROM swipe_events
		WHERE learned_at IS NULL AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, createdBefore.UTC(), limit)
}

func (d *DB) listSwipes(ctx context.Context, query string, args ...any) ([]*models.SwipeEvent, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list swipes: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var events []*models.SwipeEvent
	for rows.Next() {
		e, err := scanSwipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swipe: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListSeen implements store.Store.
func (d *DB) ListSeen(ctx context.Context, userID uuid.UUID) ([]store.SeenCandidate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT candidate_id, seen_at FROM seen_candidates WHERE user_id = $1 ORDER BY seen_at, candidate_id
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list seen candidates: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var seen []store.SeenCandidate
	for rows.Next() {
		var s store.SeenCandidate
		if err := rows.Scan(&s.CandidateID, &s.SeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan seen candidate: %w", err)
		}
		seen = append(seen, s)
	}
	return seen, rows.Err()
}

// ResetSeen implements store.Store.
func (d *DB) ResetSeen(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM seen_candidates WHERE user_id = $1`, userID)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to reset seen candidates: %w", err))
	}
	return result.RowsAffected()
}

// ListPendingRequests implements store.Store.
func (d *DB) ListPendingRequests(ctx context.Context, targetID uuid.UUID) ([]store.PendingRequest, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT requester_id, created_at FROM connection_requests WHERE target_id = $1 ORDER BY created_at, requester_id
	`, targetID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list pending requests: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var pending []store.PendingRequest
	for rows.Next() {
		var p store.PendingRequest
		if err := rows.Scan(&p.RequesterID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// InsertLearningMetric implements store.Store.
func (d *DB) InsertLearningMetric(ctx context.Context, m *models.LearningMetric) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO learning_metrics (id, event_id, user_id, action, change_magnitude, learning_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, m.ID, m.EventID, m.UserID, m.Action, m.ChangeMagnitude, m.LearningRate, m.CreatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("failed to insert learning metric: %w", err))
	}
	return nil
}

// ListLearningMetrics implements store.Store.
func (d *DB) ListLearningMetrics(ctx context.Context, userID uuid.UUID) ([]*models.LearningMetric, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, action, change_magnitude, learning_rate, created_at
		FROM learning_metrics WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list learning metrics: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var metrics []*models.LearningMetric
	for rows.Next() {
		var m models.LearningMetric
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Action, &m.ChangeMagnitude, &m.LearningRate, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
