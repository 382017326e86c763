package compass

import (
	"errors"
	"fmt"

	"github.com/benvon/compass/internal/store"
)

var (
	// ErrInvalidInterest means an interest set could not be embedded at all.
	ErrInvalidInterest = errors.New("invalid interest")
	// ErrDimensionMismatch means two vectors of different length were combined.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidAction means an action other than connect or skip.
	ErrInvalidAction = errors.New("invalid swipe action")
	// ErrInsufficientTokens means a connect was attempted with an empty balance.
	ErrInsufficientTokens = errors.New("insufficient connection tokens")
	// ErrPreconditionNotMet means a profile is not ready for the operation,
	// e.g. learning on a swiper with no vector yet.
	ErrPreconditionNotMet = errors.New("precondition not met")
	// ErrNotFound is the store's not-found error, re-exported for callers that
	// only import this package.
	ErrNotFound = store.ErrNotFound
)

// Rejection reasons carried by ValidationError.
const (
	ReasonMissingFields   = "missing_fields"
	ReasonInvalidTarget   = "invalid_target"
	ReasonInvalidAction   = "invalid_action"
	ReasonSelfSwipe       = "self_swipe"
	ReasonMissingInterest = "missing_interests"
	ReasonInvalidInterest = "invalid_interests"
)

// ValidationError is a terminal rejection of malformed input.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Message)
}

func invalid(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
