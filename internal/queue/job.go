package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeSwipeLearning applies one swipe event to the swiper's preference vector
	JobTypeSwipeLearning JobType = "swipe_learning"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	EventID    *uuid.UUID     `json:"event_id,omitempty"`   // Swipe event, for swipe learning jobs
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// NewSwipeLearningJob creates the learning job for a persisted swipe.
// Every publish for the same event carries the same EventID, which is what
// the worker deduplicates on.
func NewSwipeLearningJob(swiperID, eventID uuid.UUID) *Job {
	job := NewJob(JobTypeSwipeLearning, swiperID)
	job.EventID = &eventID
	return job
}

// DedupKey is the identity the broker and worker use to recognize redelivery
func (j *Job) DedupKey() string {
	if j.EventID != nil {
		return j.EventID.String()
	}
	return j.ID.String()
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()

	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}

	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}

	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// Delayed returns a copy of the job scheduled no earlier than notBefore with
// its retry count incremented.
func (j *Job) Delayed(notBefore time.Time) *Job {
	delayed := *j
	delayed.NotBefore = &notBefore
	delayed.RetryCount = j.RetryCount + 1
	return &delayed
}
