package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/benvon/compass/internal/models"
)

// Verifier verifies JWT tokens
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
	jwksURL     string
	audience    string
}

// NewVerifier creates a verifier for tokens issued by the configured
// provider. When the config has a client id it is required in "aud".
func NewVerifier(jwksManager *JWKSManager, config *models.OIDCConfig) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      config.Issuer,
		jwksURL:     config.JWKSURL,
		audience:    config.ClientID,
	}
}

// Verify verifies a JWT token and extracts claims
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.Identity, error) {
	token, err := v.parse(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	claims := &models.Identity{
		Subject:   token.Subject(),
		Issuer:    token.Issuer(),
		ExpiresAt: token.Expiration(),
	}
	if aud := token.Audience(); len(aud) > 0 {
		claims.Audience = aud[0]
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if name, ok := token.Get("name"); ok {
		claims.Name, _ = name.(string)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}
	return claims, nil
}

func (v *Verifier) parse(ctx context.Context, tokenString string) (jwt.Token, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAcceptableSkew(30 * time.Second),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	return token, nil
}
