package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const keyCacheTTL = 24 * time.Hour

// keyCache resolves signing keys from an OpenID metadata endpoint and caches
// them by kid, together with the per-key channel endorsements the Bot
// Framework JWKS documents carry.
type keyCache struct {
	metadataURL string
	http        *http.Client

	mu           sync.Mutex
	keys         map[string]*rsa.PublicKey
	endorsements map[string][]string
	fetchedAt    time.Time
}

func newKeyCache(metadataURL string, httpClient *http.Client) *keyCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &keyCache{
		metadataURL:  metadataURL,
		http:         httpClient,
		keys:         make(map[string]*rsa.PublicKey),
		endorsements: make(map[string][]string),
	}
}

// keyFor returns the signing key for kid, refreshing the JWKS document when
// the kid is unknown or the cache is stale.
func (c *keyCache) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	key, ok := c.keys[kid]
	fresh := time.Since(c.fetchedAt) < keyCacheTTL
	c.mu.Unlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}

	return nil, fmt.Errorf("signing key %q not found", kid)
}

// endorsementsFor returns the channel endorsements attached to a signing key.
func (c *keyCache) endorsementsFor(kid string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endorsements[kid]
}

func (c *keyCache) refresh(ctx context.Context) error {
	jwksURI, err := c.fetchJWKSURI(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	var jwks struct {
		Keys []struct {
			Kid          string   `json:"kid"`
			Kty          string   `json:"kty"`
			Use          string   `json:"use"`
			N            string   `json:"n"`
			E            string   `json:"e"`
			Endorsements []string `json:"endorsements,omitempty"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	endorsements := make(map[string][]string)
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := jwkToPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
		if len(k.Endorsements) > 0 {
			endorsements[k.Kid] = k.Endorsements
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no usable keys in jwks document %s", jwksURI)
	}

	c.mu.Lock()
	c.keys = keys
	c.endorsements = endorsements
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return nil
}

func (c *keyCache) fetchJWKSURI(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("build metadata request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch openid metadata: %w", err)
	}
	defer resp.Body.Close()

	var metadata struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return "", fmt.Errorf("decode openid metadata: %w", err)
	}
	if metadata.JWKSURI == "" {
		return "", fmt.Errorf("openid metadata %s has no jwks_uri", c.metadataURL)
	}

	return metadata.JWKSURI, nil
}

func jwkToPublicKey(nB64 string, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nb)
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
