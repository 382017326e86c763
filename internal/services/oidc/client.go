package oidc

import (
	"golang.org/x/oauth2"

	"github.com/benvon/compass/internal/models"
)

// DefaultScopes are requested on every login.
var DefaultScopes = []string{"openid", "email", "profile"}

// Client builds authorization requests. The code exchange happens in the
// frontend, which is a public client.
type Client struct {
	config *oauth2.Config
}

// NewClient creates an OAuth2 client for the provider's endpoints
func NewClient(oidcConfig *models.OIDCConfig, endpoint oauth2.Endpoint) *Client {
	cfg := &oauth2.Config{
		ClientID:    oidcConfig.ClientID,
		RedirectURL: oidcConfig.RedirectURI,
		Scopes:      DefaultScopes,
		Endpoint:    endpoint,
	}
	if oidcConfig.ClientSecret != nil {
		cfg.ClientSecret = *oidcConfig.ClientSecret
	}
	return &Client{config: cfg}
}

// Public reports whether the client has no secret and so must use PKCE.
func (c *Client) Public() bool {
	return c.config.ClientSecret == ""
}

// AuthCodeURL returns the authorization URL for state. A non-empty verifier
// adds its S256 PKCE challenge.
func (c *Client) AuthCodeURL(state, verifier string) string {
	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.config.AuthCodeURL(state, opts...)
}
