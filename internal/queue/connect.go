package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	connectAttempts     = 10
	connectInitialDelay = 2 * time.Second
	connectMaxDelay     = 30 * time.Second
)

// Connect dials RabbitMQ, retrying with exponential backoff while the broker
// starts up.
func Connect(ctx context.Context, amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return connectWithRetry(ctx, func() (*RabbitMQQueue, error) {
		return NewRabbitMQQueue(amqpURL, logger)
	}, connectAttempts, connectInitialDelay, logger)
}

func connectWithRetry[T any](ctx context.Context, dial func() (T, error), attempts int, initialDelay time.Duration, logger *zap.Logger) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		q, err := dial()
		if err == nil {
			logger.Info("connected_to_rabbitmq", zap.Int("attempt", attempt+1))
			return q, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > connectMaxDelay {
			delay = connectMaxDelay
		}
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
