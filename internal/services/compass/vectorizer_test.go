package compass

import (
	"errors"
	"fmt"
	"testing"

	"github.com/benvon/compass/internal/models"
)

func interest(tag string, intensity models.InterestIntensity, mode models.InterestMode) models.Interest {
	return models.Interest{Tag: tag, Intensity: intensity, Mode: mode}
}

func TestVectorizerEmbed(t *testing.T) {
	t.Parallel()

	v := NewVectorizer(128)

	tests := []struct {
		name      string
		interests []models.Interest
		wantErr   bool
		wantZero  bool
	}{
		{name: "nil set", interests: nil, wantZero: true},
		{name: "empty set", interests: []models.Interest{}, wantZero: true},
		{name: "single interest", interests: []models.Interest{interest("climbing", models.IntensityPro, models.ModeInPerson)}},
		{
			name: "mixed set",
			interests: []models.Interest{
				interest("climbing", models.IntensityPro, models.ModeInPerson),
				interest("chess", models.IntensityCasual, models.ModeOnline),
				interest("jazz", models.IntensityPassionate, models.ModeInPerson),
			},
		},
		{name: "missing tag", interests: []models.Interest{interest("  ", models.IntensityPro, models.ModeOnline)}, wantErr: true},
		{name: "unknown intensity", interests: []models.Interest{interest("chess", "extreme", models.ModeOnline)}, wantErr: true},
		{name: "unknown mode", interests: []models.Interest{interest("chess", models.IntensityPro, "telepathy")}, wantErr: true},
		{
			name: "one bad entry fails the set",
			interests: []models.Interest{
				interest("chess", models.IntensityPro, models.ModeOnline),
				interest("", models.IntensityPro, models.ModeOnline),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := v.Embed(tt.interests)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInterest) {
					t.Fatalf("Embed() error = %v, want ErrInvalidInterest", err)
				}
				if got != nil {
					t.Errorf("Embed() = %v on error, want nil", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed() unexpected error: %v", err)
			}
			if len(got) != 128 {
				t.Fatalf("len(Embed()) = %d, want 128", len(got))
			}

			nonZero := 0
			for i, x := range got {
				if x < -1 || x > 1 {
					t.Errorf("value[%d] = %v outside [-1, 1]", i, x)
				}
				if x != 0 {
					nonZero++
				}
			}
			if tt.wantZero && nonZero != 0 {
				t.Errorf("Embed() has %d non-zero values, want all zero", nonZero)
			}
			if !tt.wantZero && nonZero == 0 {
				t.Error("Embed() is all zero, want some signal")
			}
		})
	}
}

func TestVectorizerDeterministic(t *testing.T) {
	t.Parallel()

	in := []models.Interest{
		interest("Climbing", models.IntensityPro, models.ModeInPerson),
		interest("chess", models.IntensityCasual, models.ModeOnline),
	}

	a, err := NewVectorizer(64).Embed(in)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := NewVectorizer(64).Embed(in)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("value[%d] differs between calls: %v vs %v", i, a[i], b[i])
		}
	}

	// Normalized tags hash identically.
	c, err := NewVectorizer(64).Embed([]models.Interest{
		interest("  climbing ", models.IntensityPro, models.ModeInPerson),
		interest("CHESS", models.IntensityCasual, models.ModeOnline),
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("value[%d] differs after normalization: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestVectorizerDuplicateTags(t *testing.T) {
	t.Parallel()

	v := NewVectorizer(32)
	once, err := v.Embed([]models.Interest{interest("chess", models.IntensityPro, models.ModeOnline)})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	twice, err := v.Embed([]models.Interest{
		interest("chess", models.IntensityPro, models.ModeOnline),
		interest("Chess", models.IntensityCasual, models.ModeInPerson),
	})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("value[%d] = %v with duplicate, want %v", i, twice[i], once[i])
		}
	}
}

func TestVectorizerManyInterestsStayBounded(t *testing.T) {
	t.Parallel()

	var in []models.Interest
	for i := 0; i < 500; i++ {
		in = append(in, interest(fmt.Sprintf("tag-%d", i), models.IntensityPro, models.ModeOnline))
	}
	got, err := NewVectorizer(8).Embed(in)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}
	var peak float32
	for _, x := range got {
		if x < 0 {
			x = -x
		}
		if x > 1 {
			t.Errorf("value %v exceeds 1", x)
		}
		if x > peak {
			peak = x
		}
	}
	if peak != 1 {
		t.Errorf("peak magnitude = %v, want 1 after scaling", peak)
	}
}

func TestVectorizerIntensityMatters(t *testing.T) {
	t.Parallel()

	v := NewVectorizer(128)
	casual, err := v.Embed([]models.Interest{interest("surfing", models.IntensityCasual, models.ModeInPerson)})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	pro, err := v.Embed([]models.Interest{interest("surfing", models.IntensityPro, models.ModeInPerson)})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	same := true
	for i := range casual {
		if casual[i] != pro[i] {
			same = false
		}
	}
	if same {
		t.Error("casual and pro embeddings are identical, want intensity to change the vector")
	}
}

func TestVectorizerInvalidDimension(t *testing.T) {
	t.Parallel()

	if _, err := NewVectorizer(0).Embed(nil); err == nil {
		t.Error("Embed() with zero dimension succeeded, want error")
	}
}
