package sqlite

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

const swipeColumns = `id, swiper_id, target_id, action, created_ts, learned_ts`

type scanner interface {
	Scan(dest ...any) error
}

func scanSwipe(s scanner) (*models.SwipeEvent, error) {
	var (
		e       models.SwipeEvent
		created int64
		learned sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.SwiperID, &e.TargetID, &e.Action, &created, &learned); err != nil {
		return nil, err
	}
	e.CreatedAt = fromTS(created)
	e.LearnedAt = fromNullTS(learned)
	return &e, nil
}

// AppendSwipe implements store.Tx.
func (t *Tx) AppendSwipe(ctx context.Context, e *models.SwipeEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO swipe_events (id, swiper_id, target_id, action, created_ts) VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.SwiperID, e.TargetID, e.Action, ts(e.CreatedAt))
	if err != nil {
		return classify(fmt.Errorf("append swipe: %w", err))
	}
	return nil
}

// MarkSeen implements store.Tx.
func (t *Tx) MarkSeen(ctx context.Context, userID, candidateID uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO seen_candidates (user_id, candidate_id, seen_ts) VALUES (?, ?, ?)
		ON CONFLICT (user_id, candidate_id) DO NOTHING
	`, userID, candidateID, ts(at))
	if err != nil {
		return false, classify(fmt.Errorf("mark candidate seen: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AddPendingRequest implements store.Tx.
func (t *Tx) AddPendingRequest(ctx context.Context, targetID, requesterID uuid.UUID, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO connection_requests (target_id, requester_id, created_ts) VALUES (?, ?, ?)
		ON CONFLICT (target_id, requester_id) DO NOTHING
	`, targetID, requesterID, ts(at))
	if err != nil {
		return classify(fmt.Errorf("add pending request: %w", err))
	}
	return nil
}

// ClaimSwipe implements store.Tx.
func (t *Tx) ClaimSwipe(ctx context.Context, eventID uuid.UUID, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE swipe_events SET learned_ts = ? WHERE id = ? AND learned_ts IS NULL
	`, ts(at), eventID)
	if err != nil {
		return false, classify(fmt.Errorf("claim swipe: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetSwipeEvent implements store.Store.
func (d *DB) GetSwipeEvent(ctx context.Context, id uuid.UUID) (*models.SwipeEvent, error) {
	e, err := scanSwipe(d.db.QueryRowContext(ctx, `SELECT `+swipeColumns+` FROM swipe_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("swipe event %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get swipe event: %w", err))
	}
	return e, nil
}

// ListSwipes implements store.Store.
func (d *DB) ListSwipes(ctx context.Context, swiperID uuid.UUID) ([]*models.SwipeEvent, error) {
	return d.listSwipes(ctx, `SELECT `+swipeColumns+` FROM swipe_events WHERE swiper_id = ? ORDER BY created_ts, id`, swiperID)
}

// ListUnlearnedSwipes implements store.Store.
func (d *DB) ListUnlearnedSwipes(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SwipeEvent, error) {
	return d.listSwipes(ctx, `
		SELECT `+swipeColumns+` FROM swipe_events
		WHERE learned_ts IS NULL AND created_ts < ?
		ORDER BY created_ts, id
		LIMIT ?
	`, ts(createdBefore), limit)
}

func (d *DB) listSwipes(ctx context.Context, query string, args ...any) ([]*models.SwipeEvent, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list swipes: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var events []*models.SwipeEvent
	for rows.Next() {
		e, err := scanSwipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swipe: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListSeen implements store.Store.
func (d *DB) ListSeen(ctx context.Context, userID uuid.UUID) ([]store.SeenCandidate, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT candidate_id, seen_ts FROM seen_candidates WHERE user_id = ? ORDER BY seen_ts, candidate_id
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("list seen candidates: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var seen []store.SeenCandidate
	for rows.Next() {
		var (
			s  store.SeenCandidate
			at int64
		)
		if err := rows.Scan(&s.CandidateID, &at); err != nil {
			return nil, fmt.Errorf("scan seen candidate: %w", err)
		}
		s.SeenAt = fromTS(at)
		seen = append(seen, s)
	}
	return seen, rows.Err()
}

// ResetSeen implements store.Store.
func (d *DB) ResetSeen(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := d.db.ExecContext(ctx, `DELETE FROM seen_candidates WHERE user_id = ?`, userID)
	if err != nil {
		return 0, classify(fmt.Errorf("reset seen candidates: %w", err))
	}
	return result.RowsAffected()
}

// ListPendingRequests implements store.Store.
func (d *DB) ListPendingRequests(ctx context.Context, targetID uuid.UUID) ([]store.PendingRequest, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT requester_id, created_ts FROM connection_requests WHERE target_id = ? ORDER BY created_ts, requester_id
	`, targetID)
	if err != nil {
		return nil, classify(fmt.Errorf("list pending requests: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var pending []store.PendingRequest
	for rows.Next() {
		var (
			p  store.PendingRequest
			at int64
		)
		if err := rows.Scan(&p.RequesterID, &at); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		p.CreatedAt = fromTS(at)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// InsertLearningMetric implements store.Store.
func (d *DB) InsertLearningMetric(ctx context.Context, m *models.LearningMetric) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO learning_metrics (id, event_id, user_id, action, change_magnitude, learning_rate, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`, m.ID, m.EventID, m.UserID, m.Action, m.ChangeMagnitude, float64(m.LearningRate), ts(m.CreatedAt))
	if err != nil {
		return classify(fmt.Errorf("insert learning metric: %w", err))
	}
	return nil
}

// ListLearningMetrics implements store.Store.
func (d *DB) ListLearningMetrics(ctx context.Context, userID uuid.UUID) ([]*models.LearningMetric, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, action, change_magnitude, learning_rate, created_ts
		FROM learning_metrics WHERE user_id = ? ORDER BY created_ts, id
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("list learning metrics: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var metrics []*models.LearningMetric
	for rows.Next() {
		var (
			m    models.LearningMetric
			rate float64
			at   int64
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Action, &m.ChangeMagnitude, &rate, &at); err != nil {
			return nil, fmt.Errorf("scan learning metric: %w", err)
		}
		m.LearningRate = float32(rate)
		m.CreatedAt = fromTS(at)
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
