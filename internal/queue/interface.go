// Package queue carries swipe learning jobs from the API to the workers.
package queue

import (
	"context"
	"time"
)

// MessageInterface is one delivered job as the learner sees it.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// Publisher is the publish half of a queue. Intake, the learner's retries
// and the replay sweeper only ever publish.
type Publisher interface {
	Enqueue(ctx context.Context, job *Job) error
}

// JobQueue is a durable queue of learning jobs.
type JobQueue interface {
	Publisher

	// Consume delivers jobs until ctx is cancelled. prefetchCount bounds
	// how many unsettled messages this consumer holds.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error

	// HealthCheck verifies the broker connection and the job queue.
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages older than retention and reports
// how many were removed.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
