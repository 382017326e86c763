package models

import (
	"time"

	"github.com/google/uuid"
)

// SwipeAction is the binary feedback a swiper gives on a candidate
type SwipeAction string

const (
	SwipeConnect SwipeAction = "connect"
	SwipeSkip    SwipeAction = "skip"
)

// Valid reports whether the action is one the engine understands
func (a SwipeAction) Valid() bool {
	return a == SwipeConnect || a == SwipeSkip
}

// Sign is +1 for connect and -1 for skip
func (a SwipeAction) Sign() float32 {
	if a == SwipeConnect {
		return 1
	}
	return -1
}

// InterestIntensity is how strongly a user holds a declared interest
type InterestIntensity string

const (
	IntensityCasual     InterestIntensity = "casual"
	IntensityPassionate InterestIntensity = "passionate"
	IntensityPro        InterestIntensity = "pro"
)

// InterestMode is how a user prefers to pursue an interest
type InterestMode string

const (
	ModeInPerson InterestMode = "in_person"
	ModeOnline   InterestMode = "online"
)

// Interest is one entry of a user's declared DNA
type Interest struct {
	Tag       string            `json:"tag" validate:"required,max=64"`
	Intensity InterestIntensity `json:"intensity" validate:"required,interest_intensity"`
	Mode      InterestMode      `json:"mode" validate:"required,interest_mode"`
}

// TasteProfile is the per-user Compass state
type TasteProfile struct {
	UserID              uuid.UUID  `json:"user_id"`
	DeclaredInterests   []Interest `json:"declared_interests"`
	PreferenceVector    []float32  `json:"preference_vector,omitempty"`
	Discoverable        bool       `json:"discoverable"`
	LastActiveAt        *time.Time `json:"last_active_at,omitempty"`
	TokenBalance        int        `json:"token_balance"`
	TokenRefreshedAt    *time.Time `json:"token_refreshed_at,omitempty"`
	VectorInitializedAt *time.Time `json:"vector_initialized_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasVector reports whether the profile carries a vector of exactly dim values
func (p *TasteProfile) HasVector(dim int) bool {
	return p != nil && len(p.PreferenceVector) == dim && dim > 0
}

// SwipeEvent is an append-only swipe ledger entry. LearnedAt is set once by
// the learning worker and is the only field ever written after insert.
type SwipeEvent struct {
	ID        uuid.UUID   `json:"id"`
	SwiperID  uuid.UUID   `json:"swiper_id"`
	TargetID  uuid.UUID   `json:"target_id"`
	Action    SwipeAction `json:"action"`
	CreatedAt time.Time   `json:"created_at"`
	LearnedAt *time.Time  `json:"learned_at,omitempty"`
}

// LearningMetric records the effect of one applied swipe
type LearningMetric struct {
	ID              uuid.UUID   `json:"id"`
	EventID         uuid.UUID   `json:"event_id"`
	UserID          uuid.UUID   `json:"user_id"`
	Action          SwipeAction `json:"action"`
	ChangeMagnitude float64     `json:"change_magnitude"`
	LearningRate    float32     `json:"learning_rate"`
	CreatedAt       time.Time   `json:"created_at"`
}
