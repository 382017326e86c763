package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a local account keyed by the identity provider's subject. It
// takes part in swiping only once a TasteProfile with the same ID exists.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	ProviderID    *string   `json:"provider_id,omitempty"`
	DisplayName   *string   `json:"display_name,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Identity is what a verified bearer token says about its holder.
type Identity struct {
	Subject   string
	Issuer    string
	Audience  string
	Email     string
	Name      string
	ExpiresAt time.Time
}
