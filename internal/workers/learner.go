package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store"
)

var tracer = otel.Tracer("github.com/benvon/compass/internal/workers")

// Reasons a learning job finished without changing a vector.
const (
	SkipAlreadyLearned    = "already_learned"
	SkipEventNotFound     = "event_not_found"
	SkipSwiperNotFound    = "swiper_not_found"
	SkipNoVector          = "no_vector"
	SkipTargetNotFound    = "target_not_found"
	SkipTargetNoInterests = "target_no_interests"
)

// errJobMismatch marks a job whose user does not own the referenced event.
// Retrying cannot fix it.
var errJobMismatch = errors.New("job does not match swipe event")

// LearnResult describes what one learning job did.
type LearnResult struct {
	Applied         bool
	SkipReason      string
	ChangeMagnitude float64
	Vector          []float32
}

// Learner applies swipe events to swiper preference vectors.
type Learner struct {
	store     store.Store
	embedder  compass.Embedder
	updater   *compass.Updater
	publisher queue.Publisher // For re-enqueueing failed jobs with a delay
	logger    *zap.Logger
	now       func() time.Time
}

// NewLearner creates a learner. publisher may be nil, in which case failed
// jobs are requeued as delivered.
func NewLearner(
	s store.Store,
	embedder compass.Embedder,
	updater *compass.Updater,
	publisher queue.Publisher,
	logger *zap.Logger,
) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		store:     s,
		embedder:  embedder,
		updater:   updater,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessSwipeLearningJob applies one swipe event. Redelivery of an event
// that was already applied is a no-op.
func (l *Learner) ProcessSwipeLearningJob(ctx context.Context, job *queue.Job) (*LearnResult, error) {
	if job.EventID == nil {
		return nil, fmt.Errorf("%w: event_id is required for swipe learning job", errJobMismatch)
	}

	ctx, span := tracer.Start(ctx, "compass.learn_swipe")
	defer span.End()
	span.SetAttributes(attribute.String("compass.event_id", job.EventID.String()))

	event, err := l.store.GetSwipeEvent(ctx, *job.EventID)
	if errors.Is(err, store.ErrNotFound) {
		l.logger.Warn("learning_event_not_found",
			zap.String("event_id", job.EventID.String()),
			zap.String("user_id", job.UserID.String()),
		)
		return &LearnResult{SkipReason: SkipEventNotFound}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load event")
		return nil, fmt.Errorf("failed to get swipe event: %w", err)
	}
	if event.SwiperID != job.UserID {
		return nil, fmt.Errorf("%w: event %s belongs to %s, job names %s", errJobMismatch, event.ID, event.SwiperID, job.UserID)
	}

	var (
		result = &LearnResult{}
		before []float32
	)
	err = l.store.WithTx(ctx, func(tx store.Tx) error {
		swiper, err := tx.LockProfile(ctx, event.SwiperID)
		if errors.Is(err, store.ErrNotFound) {
			result.SkipReason = SkipSwiperNotFound
			return nil
		}
		if err != nil {
			return err
		}

		claimed, err := tx.ClaimSwipe(ctx, event.ID, l.now().UTC())
		if err != nil {
			return err
		}
		if !claimed {
			result.SkipReason = SkipAlreadyLearned
			return nil
		}

		dim := l.embedder.Dimension()
		if !swiper.HasVector(dim) {
			result.SkipReason = SkipNoVector
			l.logger.Warn("learning_precondition_not_met",
				zap.String("event_id", event.ID.String()),
				zap.String("user_id", event.SwiperID.String()),
				zap.Int("vector_length", len(swiper.PreferenceVector)),
				zap.Int("dimension", dim),
				zap.Error(compass.ErrPreconditionNotMet),
			)
			return nil
		}

		target, err := tx.GetProfile(ctx, event.TargetID)
		if errors.Is(err, store.ErrNotFound) {
			result.SkipReason = SkipTargetNotFound
			return nil
		}
		if err != nil {
			return err
		}
		if len(target.DeclaredInterests) == 0 {
			result.SkipReason = SkipTargetNoInterests
			return nil
		}
		targetVector, err := l.embedder.Embed(target.DeclaredInterests)
		if errors.Is(err, compass.ErrInvalidInterest) {
			result.SkipReason = SkipTargetNoInterests
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to embed target interests: %w", err)
		}

		before = swiper.PreferenceVector
		updated, err := l.updater.Apply(before, targetVector, event.Action)
		if err != nil {
			return err
		}
		if err := tx.SetPreferenceVector(ctx, event.SwiperID, updated, nil); err != nil {
			return err
		}
		result.Applied = true
		result.Vector = updated
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply update")
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("compass.applied", result.Applied),
		attribute.String("compass.skip_reason", result.SkipReason),
	)
	if !result.Applied {
		l.logger.Info("learning_update_skipped",
			zap.String("event_id", event.ID.String()),
			zap.String("user_id", event.SwiperID.String()),
			zap.String("reason", result.SkipReason),
		)
		return result, nil
	}

	result.ChangeMagnitude, _ = compass.L1Distance(before, result.Vector)
	l.logger.Info("learning_update_applied",
		zap.String("event_id", event.ID.String()),
		zap.String("user_id", event.SwiperID.String()),
		zap.String("action", string(event.Action)),
		zap.Float64("change_magnitude", result.ChangeMagnitude),
	)
	l.recordMetric(ctx, event, result.ChangeMagnitude)
	return result, nil
}

// recordMetric is best effort; the vector update has already committed.
func (l *Learner) recordMetric(ctx context.Context, event *models.SwipeEvent, magnitude float64) {
	metric := &models.LearningMetric{
		ID:              uuid.New(),
		EventID:         event.ID,
		UserID:          event.SwiperID,
		Action:          event.Action,
		ChangeMagnitude: magnitude,
		LearningRate:    l.updater.Rate(),
		CreatedAt:       l.now().UTC(),
	}
	if err := l.store.InsertLearningMetric(ctx, metric); err != nil {
		l.logger.Warn("learning_metric_write_failed",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}

// ProcessJob processes a job based on its type
func (l *Learner) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() && !job.IsExpired() {
		// Delayed delivery without the delayed exchange: hand it back.
		l.logger.Debug("job_not_ready",
			zap.String("job_id", job.ID.String()),
			zap.Any("not_before", job.NotBefore),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			return fmt.Errorf("failed to requeue delayed job: %w", nackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeSwipeLearning:
		if _, err := l.ProcessSwipeLearningJob(ctx, job); err != nil {
			return l.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			l.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError retries failures with backoff and dead-letters the job
// once retries run out.
func (l *Learner) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("event_id", job.DedupKey()),
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	}

	if errors.Is(err, errJobMismatch) {
		l.logger.Error("learning_job_rejected", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			l.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job rejected: %w", err)
	}

	// A republished copy carries the incremented retry count; a plain
	// requeue redelivers the original body.
	if job.CanRetry() && l.publisher != nil {
		notBefore := l.now().Add(retryDelay(job.RetryCount, store.IsTransient(err)))
		enqueueErr := l.publisher.Enqueue(ctx, job.Delayed(notBefore))
		if enqueueErr == nil {
			if ackErr := msg.Ack(); ackErr != nil {
				l.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
			}
			l.logger.Warn("learning_job_delayed", append(fields, zap.Time("not_before", notBefore))...)
			return fmt.Errorf("job failed (retry at %s): %w", notBefore.Format(time.RFC3339), err)
		}
		l.logger.Warn("learning_job_reenqueue_failed", zap.String("job_id", job.ID.String()), zap.Error(enqueueErr))
	}

	if job.CanRetry() {
		job.IncrementRetry()
		l.logger.Warn("learning_job_retry", fields...)
		if nackErr := msg.Nack(true); nackErr != nil {
			l.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	l.logger.Error("learning_job_dead_lettered", fields...)
	if nackErr := msg.Nack(false); nackErr != nil {
		l.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// retryDelay is exponential from one second for transient store errors and
// from ten seconds otherwise, capped at five minutes.
func retryDelay(attempt int, transient bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 9 {
		attempt = 9
	}
	base := 10 * time.Second
	if transient {
		base = time.Second
	}
	delay := base * time.Duration(1<<uint(attempt))
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}
