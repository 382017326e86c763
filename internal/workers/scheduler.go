package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a periodic job run by the Scheduler.
type Task struct {
	Name     string
	Interval time.Duration
	// LockTTL is how long a successful run keeps other replicas from
	// running the task. Zero means nine tenths of Interval.
	LockTTL time.Duration
	Run     func(ctx context.Context) error
}

func (t Task) lockTTL() time.Duration {
	if t.LockTTL > 0 {
		return t.LockTTL
	}
	return t.Interval * 9 / 10
}

// Scheduler runs tasks on tickers, guarding each run with a Locker so only
// one replica performs it.
type Scheduler struct {
	locker Locker
	logger *zap.Logger
	tasks  []Task
}

// NewScheduler creates a scheduler. A nil locker falls back to an
// in-process one.
func NewScheduler(locker Locker, logger *zap.Logger) *Scheduler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{locker: locker, logger: logger}
}

// Add registers a task. It must be called before Start.
func (s *Scheduler) Add(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start runs every task until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			s.loop(ctx, task)
		}(task)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx, task); err != nil {
				s.logger.Error("scheduled_task_failed",
					zap.String("task", task.Name),
					zap.Error(err),
				)
			}
		}
	}
}

// RunOnce runs task if its lock is free and reports whether it ran. The
// lock is kept after a successful run and released after a failed one so
// another replica can retry.
func (s *Scheduler) RunOnce(ctx context.Context, task Task) (bool, error) {
	release, err := s.locker.Acquire(ctx, "task:"+task.Name, task.lockTTL())
	if errors.Is(err, ErrLockHeld) {
		s.logger.Info("scheduled_task_skipped",
			zap.String("task", task.Name),
			zap.String("reason", "lock_held"),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := task.Run(ctx); err != nil {
		if releaseErr := release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logger.Warn("scheduled_task_release_failed",
				zap.String("task", task.Name),
				zap.Error(releaseErr),
			)
		}
		return true, err
	}
	return true, nil
}
