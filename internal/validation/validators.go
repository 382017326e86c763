package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/compass/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("swipe_action", validateSwipeAction); err != nil {
		panic(fmt.Sprintf("failed to register swipe_action validator: %v", err))
	}
	if err := Validate.RegisterValidation("interest_intensity", validateIntensity); err != nil {
		panic(fmt.Sprintf("failed to register interest_intensity validator: %v", err))
	}
	if err := Validate.RegisterValidation("interest_mode", validateMode); err != nil {
		panic(fmt.Sprintf("failed to register interest_mode validator: %v", err))
	}
}

func validateSwipeAction(fl validator.FieldLevel) bool {
	return models.SwipeAction(fl.Field().String()).Valid()
}

func validateIntensity(fl validator.FieldLevel) bool {
	return ValidateIntensity(models.InterestIntensity(fl.Field().String())) == nil
}

func validateMode(fl validator.FieldLevel) bool {
	return ValidateMode(models.InterestMode(fl.Field().String())) == nil
}

// ValidateIntensity validates an InterestIntensity value
func ValidateIntensity(v models.InterestIntensity) error {
	switch v {
	case models.IntensityCasual, models.IntensityPassionate, models.IntensityPro:
		return nil
	default:
		return fmt.Errorf("invalid intensity: %q (must be 'casual', 'passionate', or 'pro')", v)
	}
}

// ValidateMode validates an InterestMode value
func ValidateMode(v models.InterestMode) error {
	switch v {
	case models.ModeInPerson, models.ModeOnline:
		return nil
	default:
		return fmt.Errorf("invalid mode: %q (must be 'in_person' or 'online')", v)
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// NormalizeTag lowercases a tag and strips control characters so equal
// interests hash to the same slot.
func NormalizeTag(tag string) string {
	return strings.ToLower(SanitizeText(tag))
}
