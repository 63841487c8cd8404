package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// minRefetch bounds how often an unknown kid can force a fetch.
const minRefetch = 10 * time.Second

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKSClient caches the identity provider's RS256 signing keys. A failed
// refresh keeps serving the keys from the last good fetch.
type JWKSClient struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSClient{
		url: url,
		ttl: ttl,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		keys: map[string]*rsa.PublicKey{},
	}
}

func (c *JWKSClient) lookup(keyID string) (key *rsa.PublicKey, fresh bool, stale bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key = c.keys[keyID]
	age := time.Since(c.fetchedAt)
	return key, age < c.ttl, age >= minRefetch
}

// Get returns the key for keyID, fetching the set when the cache is expired
// or the kid is unknown and the last fetch is old enough to retry.
func (c *JWKSClient) Get(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	key, fresh, canRefetch := c.lookup(keyID)
	if key != nil && fresh {
		return key, nil
	}
	if key == nil && fresh && !canRefetch {
		return nil, ErrKeyNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fetchLocked(ctx); err != nil {
		if key != nil {
			return key, nil
		}
		return nil, err
	}
	if key, ok := c.keys[keyID]; ok {
		return key, nil
	}
	return nil, ErrKeyNotFound
}

func (c *JWKSClient) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !k.signingKey() {
			continue
		}
		if pub, err := k.publicKey(); err == nil {
			keys[k.Kid] = pub
		}
	}
	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}

func (k jwk) signingKey() bool {
	if k.Kty != "RSA" || k.Kid == "" || k.N == "" || k.E == "" {
		return false
	}
	return (k.Use == "" || k.Use == "sig") && (k.Alg == "" || k.Alg == "RS256")
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("jwk %s: unsupported exponent", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
