package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

type cachedSet struct {
	keys    jwk.Set
	expires time.Time
}

// JWKSManager manages JWKS fetching and caching
type JWKSManager struct {
	mu         sync.RWMutex
	cache      map[string]cachedSet
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// NewJWKSManager creates a JWKS manager that caches each key set for ttl.
// A non-positive ttl means one hour.
func NewJWKSManager(ttl time.Duration) *JWKSManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWKSManager{
		cache:      make(map[string]cachedSet),
		ttl:        ttl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// GetJWKS retrieves JWKS for a given JWKS URL, with caching
func (m *JWKSManager) GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error) {
	m.mu.RLock()
	cached, ok := m.cache[jwksURL]
	m.mu.RUnlock()
	if ok && m.now().Before(cached.expires) {
		return cached.keys, nil
	}

	keys, err := jwk.Fetch(ctx, jwksURL, jwk.WithHTTPClient(m.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	m.mu.Lock()
	m.cache[jwksURL] = cachedSet{keys: keys, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return keys, nil
}
