package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store"
)

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	Candidates int           `json:"candidates"`
	Credited   int           `json:"credited"`
	Skipped    int           `json:"skipped"` // Already at the cap
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// TokenRefresher credits the daily token allowance to active,
// discoverable users.
type TokenRefresher struct {
	store  store.Store
	ledger *compass.TokenLedger
	cfg    config.Compass
	logger *zap.Logger
	now    func() time.Time
}

// NewTokenRefresher creates a new token refresher
func NewTokenRefresher(s store.Store, ledger *compass.TokenLedger, cfg config.Compass, logger *zap.Logger) *TokenRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenRefresher{
		store:  s,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RefreshTokens pages through eligible users and credits each one in its
// own transaction. A failure for one user is logged and counted; only a
// failure to list candidates aborts the run.
func (r *TokenRefresher) RefreshTokens(ctx context.Context) (RefreshReport, error) {
	start := r.now()
	activeSince := start.Add(-r.cfg.ActiveWindow).UTC()

	var (
		report RefreshReport
		after  uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ids, err := r.store.ListRefreshCandidates(ctx, activeSince, after, r.cfg.RefreshBatchSize)
		if err != nil {
			return report, fmt.Errorf("failed to list refresh candidates: %w", err)
		}

		for _, userID := range ids {
			report.Candidates++
			res, err := r.ledger.Credit(ctx, userID, r.cfg.DailyRefresh, r.cfg.MaxTokens)
			if err != nil {
				report.Failed++
				r.logger.Warn("token_refresh_user_failed",
					zap.String("user_id", userID.String()),
					zap.Error(err),
				)
				continue
			}
			if res.Skipped {
				report.Skipped++
				continue
			}
			report.Credited++
			r.logger.Debug("token_refresh_user_credited",
				zap.String("user_id", userID.String()),
				zap.Int("before", res.Before),
				zap.Int("after", res.After),
			)
		}

		if len(ids) < r.cfg.RefreshBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	report.Duration = r.now().Sub(start)
	r.logger.Info("token_refresh_completed",
		zap.Int("candidates", report.Candidates),
		zap.Int("credited", report.Credited),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
