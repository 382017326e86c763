package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/benvon/compass/cmd/compassctl/commands"
	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/store/db"
)

func main() {
	zapLogger, err := logger.NewDevelopmentLogger("compassctl", false)
	if err != nil {
		zapLogger = zap.NewNop()
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	deps := commands.Deps{
		OpenStore: func(ctx context.Context) (store.Store, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
			return db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		},
		OpenPublisher: func(ctx context.Context) (queue.Publisher, func() error, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load config: %w", err)
			}
			q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zapLogger)
			if err != nil {
				return nil, nil, err
			}
			return q, q.Close, nil
		},
		Compass: config.DefaultCompass(),
		Logger:  zapLogger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
