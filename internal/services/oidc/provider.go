package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/benvon/compass/internal/models"
)

// Provider resolves the identity provider's endpoints from configuration,
// falling back to OIDC discovery.
type Provider struct {
	config     *models.OIDCConfig
	httpClient *http.Client

	mu       sync.Mutex
	endpoint *oauth2.Endpoint
}

// NewProvider creates a new OIDC provider manager
func NewProvider(config *models.OIDCConfig) *Provider {
	return &Provider{
		config:     config,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Config returns the provider settings.
func (p *Provider) Config() *models.OIDCConfig {
	return p.config
}

// Enabled reports whether tokens can be verified at all.
func (p *Provider) Enabled() bool {
	return p.config != nil && p.config.Issuer != "" && p.config.JWKSURL != ""
}

// Endpoint returns the OAuth2 endpoints. Explicit URLs win; otherwise the
// discovery document is consulted once and cached, and if that fails the
// conventional /oauth2 paths under the issuer are used.
func (p *Provider) Endpoint(ctx context.Context) oauth2.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endpoint != nil {
		return *p.endpoint
	}

	issuer := strings.TrimRight(p.config.Issuer, "/")
	ep := oauth2.Endpoint{AuthURL: p.config.AuthURL, TokenURL: p.config.TokenURL}
	discovered := false
	if ep.AuthURL == "" || ep.TokenURL == "" {
		if doc, err := p.discover(ctx, issuer); err == nil {
			discovered = true
			if ep.AuthURL == "" {
				ep.AuthURL = doc.AuthorizationEndpoint
			}
			if ep.TokenURL == "" {
				ep.TokenURL = doc.TokenEndpoint
			}
		}
	}
	if ep.AuthURL == "" {
		ep.AuthURL = issuer + "/oauth2/authorize"
	}
	if ep.TokenURL == "" {
		ep.TokenURL = issuer + "/oauth2/token"
	}

	// A failed discovery is retried on the next call.
	if discovered || (p.config.AuthURL != "" && p.config.TokenURL != "") {
		p.endpoint = &ep
	}
	return ep
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

func (p *Provider) discover(ctx context.Context, issuer string) (*discoveryDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	return &doc, nil
}

// GetLoginConfig returns the configuration needed for frontend OIDC login,
// including a ready authorization URL for state. Public clients also get a
// fresh PKCE verifier, which the frontend keeps for the code exchange.
func (p *Provider) GetLoginConfig(ctx context.Context, state string) (*LoginConfig, error) {
	if p.config == nil || p.config.Issuer == "" || p.config.ClientID == "" {
		return nil, fmt.Errorf("OIDC is not configured")
	}

	ep := p.Endpoint(ctx)
	client := NewClient(p.config, ep)
	var verifier string
	if client.Public() {
		verifier = oauth2.GenerateVerifier()
	}
	return &LoginConfig{
		AuthorizationEndpoint: ep.AuthURL,
		TokenEndpoint:         ep.TokenURL,
		ClientID:              p.config.ClientID,
		RedirectURI:           p.config.RedirectURI,
		Scope:                 strings.Join(DefaultScopes, " "),
		AuthorizationURL:      client.AuthCodeURL(state, verifier),
		State:                 state,
		CodeVerifier:          verifier,
	}, nil
}

// LoginConfig contains OIDC login configuration for frontend
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
	AuthorizationURL      string `json:"authorization_url"`
	State                 string `json:"state"`
	CodeVerifier          string `json:"code_verifier,omitempty"`
}
