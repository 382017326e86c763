package compass

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/store"
)

var tracer = otel.Tracer("github.com/benvon/compass/internal/services/compass")

// SwipeRequest is the raw client input. Fields stay strings so every
// rejection reason can be reported.
type SwipeRequest struct {
	TargetID string `json:"targetId"`
	Action   string `json:"action"`
}

// SwipeOutcome describes a logged swipe. RemainingTokens is only set for
// connect.
type SwipeOutcome struct {
	Event           *models.SwipeEvent
	RemainingTokens *int
	NewlySeen       bool
	Enqueued        bool
}

// SwipeIntake validates swipes and commits all of their effects in one
// transaction.
type SwipeIntake struct {
	store     store.Store
	ledger    *TokenLedger
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSwipeIntake wires an intake. publisher may be nil, in which case
// learning relies on the replay sweeper.
func NewSwipeIntake(s store.Store, ledger *TokenLedger, publisher queue.Publisher, logger *zap.Logger) *SwipeIntake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwipeIntake{
		store:     s,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateSwipe applies the rejection rules in order and returns the parsed
// target and action.
func ValidateSwipe(swiperID uuid.UUID, req SwipeRequest) (uuid.UUID, models.SwipeAction, error) {
	rawTarget := strings.TrimSpace(req.TargetID)
	rawAction := strings.TrimSpace(req.Action)
	if rawTarget == "" || rawAction == "" {
		return uuid.Nil, "", invalid(ReasonMissingFields, "targetId and action are required")
	}
	targetID, err := uuid.Parse(rawTarget)
	if err != nil || targetID == uuid.Nil {
		return uuid.Nil, "", invalid(ReasonInvalidTarget, "targetId must be a user id")
	}

	action := models.SwipeAction(strings.ToLower(rawAction))
	if !action.Valid() {
		return uuid.Nil, "", invalid(ReasonInvalidAction, "action must be 'connect' or 'skip'")
	}

	if targetID == swiperID {
		return uuid.Nil, "", invalid(ReasonSelfSwipe, "cannot swipe on yourself")
	}
	return targetID, action, nil
}

// LogSwipe records a swipe by swiperID. A connect with no tokens fails with
// ErrInsufficientTokens and writes nothing.
func (s *SwipeIntake) LogSwipe(ctx context.Context, swiperID uuid.UUID, req SwipeRequest) (*SwipeOutcome, error) {
	ctx, span := tracer.Start(ctx, "compass.LogSwipe")
	defer span.End()

	targetID, action, err := ValidateSwipe(swiperID, req)
	if err != nil {
		span.SetStatus(codes.Error, "rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("compass.swiper_id", swiperID.String()),
		attribute.String("compass.action", string(action)),
	)

	now := s.now().UTC()
	event := &models.SwipeEvent{
		ID:        uuid.New(),
		SwiperID:  swiperID,
		TargetID:  targetID,
		Action:    action,
		CreatedAt: now,
	}
	outcome := &SwipeOutcome{Event: event}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		swiper, err := tx.LockProfile(ctx, swiperID)
		if err != nil {
			return fmt.Errorf("swiper: %w", err)
		}
		if _, err := tx.GetProfile(ctx, targetID); err != nil {
			return fmt.Errorf("target: %w", err)
		}

		if action == models.SwipeConnect {
			spent, err := s.ledger.spendLocked(ctx, tx, swiperID, swiper.TokenBalance)
			if err != nil {
				return err
			}
			if spent.Outcome == SpendInsufficientTokens {
				return ErrInsufficientTokens
			}
			outcome.RemainingTokens = &spent.Remaining
		}

		if err := tx.AppendSwipe(ctx, event); err != nil {
			return err
		}
		newlySeen, err := tx.MarkSeen(ctx, swiperID, targetID, now)
		if err != nil {
			return err
		}
		outcome.NewlySeen = newlySeen
		if err := tx.TouchActivity(ctx, swiperID, now); err != nil {
			return err
		}
		if action == models.SwipeConnect {
			if err := tx.AddPendingRequest(ctx, targetID, swiperID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "swipe failed")
		if errors.Is(err, ErrInsufficientTokens) {
			s.logger.Info("swipe_rejected_no_tokens", zap.String("user_id", swiperID.String()))
		}
		return nil, err
	}

	s.logger.Info("swipe_logged",
		zap.String("event_id", event.ID.String()),
		zap.String("user_id", swiperID.String()),
		zap.String("target_id", targetID.String()),
		zap.String("action", string(action)),
	)

	outcome.Enqueued = s.publish(ctx, event)
	return outcome, nil
}

// publish hands the event to the learning worker. Failure is logged only:
// the event is already durable and the replay sweeper will pick it up.
func (s *SwipeIntake) publish(ctx context.Context, event *models.SwipeEvent) bool {
	if s.publisher == nil {
		return false
	}
	job := queue.NewSwipeLearningJob(event.SwiperID, event.ID)
	if err := s.publisher.Enqueue(ctx, job); err != nil {
		s.logger.Warn("learning_job_enqueue_failed",
			zap.String("event_id", event.ID.String()),
			zap.String("user_id", event.SwiperID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}
