package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/logger"
	"github.com/benvon/compass/internal/queue"
	"github.com/benvon/compass/internal/services/compass"
	"github.com/benvon/compass/internal/store/db"
	"github.com/benvon/compass/internal/telemetry"
	"github.com/benvon/compass/internal/workers"
)

const (
	dlqInterval = time.Hour
	lockPrefix  = "compass:lock:"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("worker", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	engineCfg := config.DefaultCompass()
	if err := engineCfg.Validate(); err != nil {
		zapLogger.Fatal("invalid_compass_configuration", zap.Error(err))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
		zap.Duration("refresh_interval", engineCfg.RefreshInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTELEnabled && cfg.OTELEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "worker", cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	st, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	jobQueue, err := queue.Connect(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	var locker workers.Locker
	if cfg.RedisURL != "" {
		redisLocker, err := workers.NewRedisLockerFromURL(ctx, cfg.RedisURL, lockPrefix)
		if err != nil {
			zapLogger.Warn("redis_unreachable_using_local_locks", zap.Error(err))
		} else {
			locker = redisLocker
			defer func() { _ = redisLocker.Close() }()
		}
	}

	vectorizer := compass.NewVectorizer(engineCfg.VectorDimension)
	ledger := compass.NewTokenLedger(st)
	learner := workers.NewLearner(st, vectorizer, compass.NewUpdater(engineCfg), jobQueue, zapLogger)
	refresher := workers.NewTokenRefresher(st, ledger, engineCfg, zapLogger)
	replayer := workers.NewSwipeReplayer(st, jobQueue, engineCfg, zapLogger)
	dlq := queue.NewDLQCollector(jobQueue, queue.DefaultDLQRetention, zapLogger)

	scheduler := workers.NewScheduler(locker, zapLogger)
	scheduler.Add(workers.Task{
		Name:     "token_refresh",
		Interval: engineCfg.RefreshInterval,
		Run: func(ctx context.Context) error {
			_, err := refresher.RefreshTokens(ctx)
			return err
		},
	})
	scheduler.Add(workers.Task{
		Name:     "swipe_replay",
		Interval: engineCfg.ReplayAfter,
		Run: func(ctx context.Context) error {
			_, err := replayer.ReplayUnlearned(ctx)
			return err
		},
	})
	scheduler.Add(workers.Task{
		Name:     "dlq_gc",
		Interval: dlqInterval,
		Run: func(ctx context.Context) error {
			_, err := dlq.Collect(ctx)
			return err
		},
	})

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	consumerDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer close(consumerDone)
		for msg := range msgChan {
			jobCtx, jobCancel := context.WithTimeout(ctx, cfg.JobTimeout)
			if err := learner.ProcessJob(jobCtx, msg); err != nil {
				zapLogger.Error("job_processing_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err),
				)
			}
			jobCancel()
		}
		zapLogger.Info("message_channel_closed")
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()
	go func() {
		defer wg.Done()
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("scheduler_stopped_with_error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-consumerDone:
		// Lost the broker; exit so the supervisor restarts us.
		zapLogger.Error("consumer_stopped_unexpectedly")
	}

	zapLogger.Info("worker_shutting_down")
	cancel()
	wg.Wait()
	zapLogger.Info("worker_stopped")
}
