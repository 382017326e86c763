package models

// OIDCConfig represents OIDC provider configuration
type OIDCConfig struct {
	Provider     string  `json:"provider"`
	Issuer       string  `json:"issuer"`
	ClientID     string  `json:"client_id"`
	ClientSecret *string `json:"-"` // Optional for public OIDC clients
	RedirectURI  string  `json:"redirect_uri"`
	JWKSURL      string  `json:"jwks_url"`
	AuthURL      string  `json:"auth_url,omitempty"`  // Overrides discovery
	TokenURL     string  `json:"token_url,omitempty"` // Overrides discovery
}
