package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultDLQRetention is how long dead-lettered learning jobs are kept for
// inspection.
const DefaultDLQRetention = 24 * time.Hour

const dlqPurgeTimeout = 2 * time.Minute

// DLQCollector purges dead-lettered learning jobs older than a retention
// window. It has no loop of its own; the worker schedules Collect.
type DLQCollector struct {
	purger    DLQPurger
	retention time.Duration
	logger    *zap.Logger
}

// NewDLQCollector creates a collector. A non-positive retention means
// DefaultDLQRetention; a nil purger makes Collect a no-op.
func NewDLQCollector(purger DLQPurger, retention time.Duration, logger *zap.Logger) *DLQCollector {
	if retention <= 0 {
		retention = DefaultDLQRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQCollector{purger: purger, retention: retention, logger: logger}
}

// Collect runs one purge and reports how many messages were removed.
func (c *DLQCollector) Collect(ctx context.Context) (int, error) {
	if c.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dlqPurgeTimeout)
	defer cancel()

	n, err := c.purger.PurgeOlderThan(ctx, c.retention)
	if err != nil {
		return n, fmt.Errorf("DLQ purge: %w", err)
	}
	if n > 0 {
		c.logger.Info("dlq_purged",
			zap.Int("count", n),
			zap.Duration("retention", c.retention),
		)
	}
	return n, nil
}
