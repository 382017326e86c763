package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/store"
)

// SwipeReplayer re-publishes learning jobs for swipes that were persisted
// but never learned, e.g. because the post-commit publish failed.
type SwipeReplayer struct {
	store     store.Store
	publisher queue.Publisher
	cfg       config.Compass
	logger    *zap.Logger
	now       func() time.Time
}

// NewSwipeReplayer creates a new replayer
func NewSwipeReplayer(s store.Store, publisher queue.Publisher, cfg config.Compass, logger *zap.Logger) *SwipeReplayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwipeReplayer{
		store:     s,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ReplayUnlearned publishes one job per unlearned swipe older than
// ReplayAfter and returns how many were published. Publishing stops at the
// first broker error; the remaining events are picked up next run.
func (r *SwipeReplayer) ReplayUnlearned(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.ReplayAfter).UTC()
	events, err := r.store.ListUnlearnedSwipes(ctx, cutoff, r.cfg.ReplayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unlearned swipes: %w", err)
	}

	published := 0
	for _, event := range events {
		job := queue.NewSwipeLearningJob(event.SwiperID, event.ID)
		if err := r.publisher.Enqueue(ctx, job); err != nil {
			return published, fmt.Errorf("failed to republish swipe %s: %w", event.ID, err)
		}
		published++
	}

	if published > 0 {
		r.logger.Info("swipe_replay_published",
			zap.Int("count", published),
			zap.Time("cutoff", cutoff),
		)
	}
	return published, nil
}
