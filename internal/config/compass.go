package config

import (
	"fmt"
	"time"
)

// Compass holds the fixed hyperparameters of the preference-learning and
// token economy engine. Values are not read from the environment; callers
// take a copy from DefaultCompass and pass it to constructors.
type Compass struct {
	// LearningRate is the EMA step applied per swipe.
	LearningRate float32
	// VectorDimension is the length D of every preference vector.
	VectorDimension int
	// DailyRefresh is the number of tokens credited per refresh run.
	DailyRefresh int
	// MaxTokens caps tokenBalance.
	MaxTokens int
	// InitialTokens is granted once when a profile is first created.
	InitialTokens int

	RefreshInterval  time.Duration
	ActiveWindow     time.Duration
	RefreshBatchSize int

	// ReplayAfter is how long a swipe may stay unlearned before the replay
	// sweeper publishes its learning job again.
	ReplayAfter     time.Duration
	ReplayBatchSize int
}

// DefaultCompass returns the production hyperparameters.
func DefaultCompass() Compass {
	return Compass{
		LearningRate:     0.05,
		VectorDimension:  128,
		DailyRefresh:     3,
		MaxTokens:        10,
		InitialTokens:    10,
		RefreshInterval:  24 * time.Hour,
		ActiveWindow:     24 * time.Hour,
		RefreshBatchSize: 200,
		ReplayAfter:      10 * time.Minute,
		ReplayBatchSize:  500,
	}
}

// Validate reports hyperparameter combinations the engine cannot run with.
func (c Compass) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %v", c.LearningRate)
	}
	if c.VectorDimension < 1 {
		return fmt.Errorf("vector dimension must be positive, got %d", c.VectorDimension)
	}
	if c.MaxTokens < 0 || c.DailyRefresh < 0 {
		return fmt.Errorf("token amounts must not be negative")
	}
	if c.InitialTokens > c.MaxTokens {
		return fmt.Errorf("initial tokens %d exceed max tokens %d", c.InitialTokens, c.MaxTokens)
	}
	return nil
}
