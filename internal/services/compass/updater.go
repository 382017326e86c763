package compass

import (
	"fmt"
	"math"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/models"
)

// Update moves current toward target on connect and away from it on skip:
//
//	new[i] = current[i] + sign(action) * rate * (target[i] - current[i])
//
// The result is a fresh slice; neither input is modified.
func Update(current, target []float32, action models.SwipeAction, rate float32) ([]float32, error) {
	if len(current) != len(target) {
		return nil, fmt.Errorf("%w: current has %d dimensions, target has %d", ErrDimensionMismatch, len(current), len(target))
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	step := action.Sign() * rate
	out := make([]float32, len(current))
	for i := range current {
		out[i] = current[i] + step*(target[i]-current[i])
	}
	return out, nil
}

// L1Distance is the sum of absolute per-dimension differences.
func L1Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// Updater applies Update with a fixed learning rate and dimension.
type Updater struct {
	rate float32
	dim  int
}

// NewUpdater builds an Updater from the engine hyperparameters.
func NewUpdater(cfg config.Compass) *Updater {
	return &Updater{rate: cfg.LearningRate, dim: cfg.VectorDimension}
}

// Rate returns the learning rate.
func (u *Updater) Rate() float32 {
	return u.rate
}

// Apply updates current toward or away from target. Both vectors must have
// the configured dimension.
func (u *Updater) Apply(current, target []float32, action models.SwipeAction) ([]float32, error) {
	if len(current) != u.dim {
		return nil, fmt.Errorf("%w: current has %d dimensions, want %d", ErrDimensionMismatch, len(current), u.dim)
	}
	return Update(current, target, action, u.rate)
}
