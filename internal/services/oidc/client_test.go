package oidc

import (
	"net/url"
	"testing"

	"golang.org/x/oauth2"

	"github.com/benvon/compass/internal/models"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	endpoint := oauth2.Endpoint{AuthURL: "https://auth.example.com/authorize", TokenURL: "https://auth.example.com/token"}

	tests := []struct {
		name       string
		oidcConfig *models.OIDCConfig
		wantSecret string
	}{
		{
			name: "with client secret",
			oidcConfig: &models.OIDCConfig{
				ClientID:     "test-client-id",
				ClientSecret: stringPtr("test-secret"),
				RedirectURI:  "http://localhost:3000/callback",
			},
			wantSecret: "test-secret",
		},
		{
			name: "public client",
			oidcConfig: &models.OIDCConfig{
				ClientID:    "test-client-id",
				RedirectURI: "http://localhost:3000/callback",
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewClient(tt.oidcConfig, endpoint)
			if client.config.ClientID != "test-client-id" {
				t.Errorf("ClientID = %q", client.config.ClientID)
			}
			if client.config.ClientSecret != tt.wantSecret {
				t.Errorf("ClientSecret = %q, want %q", client.config.ClientSecret, tt.wantSecret)
			}
			if client.config.Endpoint != endpoint {
				t.Errorf("Endpoint = %+v, want %+v", client.config.Endpoint, endpoint)
			}
		})
	}
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	client := NewClient(&models.OIDCConfig{
		ClientID:    "test-client-id",
		RedirectURI: "http://localhost:3000/callback",
	}, oauth2.Endpoint{AuthURL: "https://auth.example.com/authorize"})
	if !client.Public() {
		t.Error("client without secret should be public")
	}

	raw := client.AuthCodeURL("state-123", "")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthCodeURL() = %q: %v", raw, err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":     "test-client-id",
		"redirect_uri":  "http://localhost:3000/callback",
		"state":         "state-123",
		"response_type": "code",
		"scope":         "openid email profile",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if u.Host != "auth.example.com" || u.Path != "/authorize" {
		t.Errorf("AuthCodeURL() host/path = %s%s", u.Host, u.Path)
	}
	if q.Has("code_challenge") {
		t.Error("code_challenge set without a verifier")
	}
}

func TestClient_AuthCodeURL_PKCE(t *testing.T) {
	t.Parallel()

	client := NewClient(&models.OIDCConfig{ClientID: "test-client-id"},
		oauth2.Endpoint{AuthURL: "https://auth.example.com/authorize"})
	verifier := oauth2.GenerateVerifier()

	u, err := url.Parse(client.AuthCodeURL("s", verifier))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("code_challenge") != oauth2.S256ChallengeFromVerifier(verifier) {
		t.Errorf("code_challenge = %q does not match the verifier", q.Get("code_challenge"))
	}
}

func stringPtr(s string) *string {
	return &s
}
