package compass

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/benvon/compass/internal/models"
	"github.com/benvon/compass/internal/validation"
)

// Embedder turns declared interests into a fixed-length vector. Embed must
// be deterministic: the learning worker re-derives candidate vectors on
// every swipe.
type Embedder interface {
	Embed(interests []models.Interest) ([]float32, error)
	Dimension() int
}

var intensityWeight = map[models.InterestIntensity]float32{
	models.IntensityCasual:     0.5,
	models.IntensityPassionate: 0.8,
	models.IntensityPro:        1.0,
}

// modeWeight scales the secondary slot that encodes how the interest is
// pursued, relative to the tag's own weight.
const modeWeight = 0.5

// Vectorizer is a feature-hashing Embedder. Each tag lands in one slot
// with a hash-derived sign; its mode lands in a second slot at half weight.
type Vectorizer struct {
	dim int
}

var _ Embedder = (*Vectorizer)(nil)

// NewVectorizer returns a Vectorizer producing dim-length vectors.
func NewVectorizer(dim int) *Vectorizer {
	return &Vectorizer{dim: dim}
}

// Dimension implements Embedder.
func (v *Vectorizer) Dimension() int {
	return v.dim
}

// Embed implements Embedder. An empty set yields a zero vector of full
// length. Any invalid interest fails the whole call with a nil vector.
func (v *Vectorizer) Embed(interests []models.Interest) ([]float32, error) {
	if v.dim < 1 {
		return nil, fmt.Errorf("vectorizer dimension must be positive, got %d", v.dim)
	}

	out := make([]float32, v.dim)
	seen := make(map[string]struct{}, len(interests))
	for i, in := range interests {
		tag := validation.NormalizeTag(in.Tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: interest %d has no tag", ErrInvalidInterest, i)
		}
		weight, ok := intensityWeight[in.Intensity]
		if !ok {
			return nil, fmt.Errorf("%w: interest %q: %v", ErrInvalidInterest, tag, validation.ValidateIntensity(in.Intensity))
		}
		if err := validation.ValidateMode(in.Mode); err != nil {
			return nil, fmt.Errorf("%w: interest %q: %v", ErrInvalidInterest, tag, err)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}

		slot, sign := v.bucket("tag:" + tag)
		out[slot] += sign * weight

		slot, sign = v.bucket("mode:" + tag + ":" + string(in.Mode))
		out[slot] += sign * weight * modeWeight
	}

	scaleToUnit(out)
	return out, nil
}

// bucket hashes key to a slot and a +1/-1 sign taken from the top bit.
func (v *Vectorizer) bucket(key string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum(nil)
	n := binary.BigEndian.Uint64(sum)

	slot := int(n % uint64(v.dim))
	if n>>63 == 1 {
		return slot, -1
	}
	return slot, 1
}

// scaleToUnit divides by the largest magnitude when it exceeds 1 so every
// value lies in [-1, 1].
func scaleToUnit(vec []float32) {
	var peak float32
	for _, x := range vec {
		if x < 0 {
			x = -x
		}
		if x > peak {
			peak = x
		}
	}
	if peak <= 1 {
		return
	}
	for i := range vec {
		vec[i] /= peak
	}
}
