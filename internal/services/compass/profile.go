package compass

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/compass/internal/config"
	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/store"
	"github.com/benvon/compass/internal/validation"
)

// InitResult is returned by InitializeVector.
type InitResult struct {
	VectorDimension    int
	ConnectionTokens   int
	AlreadyInitialized bool
}

// VectorStatus summarizes a profile's Compass readiness.
type VectorStatus struct {
	Initialized      bool `json:"initialized"`
	HasVector        bool `json:"hasVector"`
	VectorLength     int  `json:"vectorLength"`
	ConnectionTokens int  `json:"connectionTokens"`
	Discoverable     bool `json:"discoverable"`
}

// ProfileService manages DNA and the one-time vector initialization.
type ProfileService struct {
	store    store.Store
	embedder Embedder
	cfg      config.Compass
	logger   *zap.Logger
	now      func() time.Time
}

// NewProfileService creates a profile service.
func NewProfileService(s store.Store, embedder Embedder, cfg config.Compass, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{store: s, embedder: embedder, cfg: cfg, logger: logger, now: time.Now}
}

// NormalizeInterests validates every interest and returns the set with tags
// normalized and duplicates removed, first occurrence wins.
func NormalizeInterests(in []models.Interest) ([]models.Interest, error) {
	out := make([]models.Interest, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, interest := range in {
		interest.Tag = validation.NormalizeTag(interest.Tag)
		if err := validation.Validate.Struct(interest); err != nil {
			return nil, invalid(ReasonInvalidInterest, "interest %d: %v", i, err)
		}
		if _, dup := seen[interest.Tag]; dup {
			continue
		}
		seen[interest.Tag] = struct{}{}
		out = append(out, interest)
	}
	return out, nil
}

// UpsertDNA writes declared interests and the discoverable flag, creating
// the profile with the initial token grant on first write.
func (p *ProfileService) UpsertDNA(ctx context.Context, userID uuid.UUID, interests []models.Interest, discoverable bool) (*models.TasteProfile, error) {
	normalized, err := NormalizeInterests(interests)
	if err != nil {
		return nil, err
	}

	var profile *models.TasteProfile
	err = p.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.LockProfile(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			now := p.now().UTC()
			profile = &models.TasteProfile{
				UserID:            userID,
				DeclaredInterests: normalized,
				Discoverable:      discoverable,
				LastActiveAt:      &now,
				TokenBalance:      p.cfg.InitialTokens,
				TokenRefreshedAt:  &now,
			}
			return tx.CreateProfile(ctx, profile)
		}
		if err != nil {
			return err
		}
		if err := tx.UpdateDNA(ctx, userID, normalized, discoverable); err != nil {
			return err
		}
		existing.DeclaredInterests = normalized
		existing.Discoverable = discoverable
		profile = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("profile_dna_updated",
		zap.String("user_id", userID.String()),
		zap.Int("interests", len(normalized)),
		zap.Bool("discoverable", discoverable),
	)
	return profile, nil
}

// InitializeVector derives the first preference vector from declared
// interests. A profile that already has a full-length vector is left as is.
func (p *ProfileService) InitializeVector(ctx context.Context, userID uuid.UUID) (*InitResult, error) {
	dim := p.embedder.Dimension()
	result := &InitResult{VectorDimension: dim}

	err := p.store.WithTx(ctx, func(tx store.Tx) error {
		profile, err := tx.LockProfile(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return invalid(ReasonMissingInterest, "declare interests before initializing")
		}
		if err != nil {
			return err
		}
		result.ConnectionTokens = profile.TokenBalance

		if profile.HasVector(dim) {
			result.AlreadyInitialized = true
			return nil
		}
		if len(profile.DeclaredInterests) == 0 {
			return invalid(ReasonMissingInterest, "declare interests before initializing")
		}

		vector, err := p.embedder.Embed(profile.DeclaredInterests)
		if err != nil {
			if errors.Is(err, ErrInvalidInterest) {
				return invalid(ReasonInvalidInterest, "%v", err)
			}
			return fmt.Errorf("failed to embed interests: %w", err)
		}
		if len(vector) != dim {
			return fmt.Errorf("%w: embedder returned %d values, want %d", ErrDimensionMismatch, len(vector), dim)
		}

		now := p.now().UTC()
		return tx.SetPreferenceVector(ctx, userID, vector, &now)
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyInitialized {
		p.logger.Info("preference_vector_initialized",
			zap.String("user_id", userID.String()),
			zap.Int("dimension", dim),
		)
	}
	return result, nil
}

// Status reports readiness. A user with no profile yet is reported as
// uninitialized rather than as an error.
func (p *ProfileService) Status(ctx context.Context, userID uuid.UUID) (*VectorStatus, error) {
	profile, err := p.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &VectorStatus{}, nil
	}
	if err != nil {
		return nil, err
	}

	dim := p.embedder.Dimension()
	return &VectorStatus{
		Initialized:      profile.VectorInitializedAt != nil && profile.HasVector(dim),
		HasVector:        len(profile.PreferenceVector) > 0,
		VectorLength:     len(profile.PreferenceVector),
		ConnectionTokens: profile.TokenBalance,
		Discoverable:     profile.Discoverable,
	}, nil
}

// TouchActivity stamps the user's last-active time. Users that have not
// declared a profile yet have nothing to stamp.
func (p *ProfileService) TouchActivity(ctx context.Context, userID uuid.UUID) error {
	err := p.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.TouchActivity(ctx, userID, p.now().UTC())
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
