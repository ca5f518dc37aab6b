package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// ErrJWKSUnavailable wraps failures to fetch or decode the key set. It
// marks a backend failure rather than a bad token.
var ErrJWKSUnavailable = errors.New("JWKS unavailable")

// errUnknownKey is returned when the key set loaded fine but has no key
// with the token's kid.
var errUnknownKey = errors.New("signing key not found in JWKS")

// maxJWKSBytes caps the key set response size.
const maxJWKSBytes = 1 << 20

// keySet caches RSA public keys from a JWKS endpoint. Keys are refreshed
// when the TTL expires or an unknown kid shows up, at most once per
// minRefresh.
type keySet struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(url string, client *http.Client, ttl time.Duration) *keySet {
	return &keySet{
		url:        url,
		client:     client,
		ttl:        ttl,
		minRefresh: 10 * time.Second,
		now:        time.Now,
	}
}

func (k *keySet) lookup(kid string) (*rsa.PublicKey, bool, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[kid]
	fresh := k.keys != nil && k.now().Sub(k.fetchedAt) < k.ttl
	return key, ok, fresh
}

// get returns the key for kid, fetching the key set when needed.
func (k *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok, fresh := k.lookup(kid); ok && fresh {
		return key, nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	age := k.now().Sub(k.fetchedAt)
	if key, ok := k.keys[kid]; ok && age < k.ttl {
		return key, nil
	}
	// A kid missing from a recent fetch stays missing until minRefresh passes.
	if k.keys != nil && age < k.minRefresh {
		return nil, fmt.Errorf("%w: kid %q", errUnknownKey, kid)
	}

	keys, err := k.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	k.keys = keys
	k.fetchedAt = k.now()
	slog.Debug("JWKS refreshed", "keys", len(keys), "url", k.url)

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", errUnknownKey, kid)
	}
	return key, nil
}

func (k *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, j := range doc.Keys {
		if j.Kty != "RSA" || (j.Use != "" && j.Use != "sig") {
			continue
		}
		pub, err := j.rsaPublicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", j.Kid, "error", err)
			continue
		}
		keys[j.Kid] = pub
	}
	return keys, nil
}

// jwk is a single JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"` // base64url modulus
	E   string `json:"e"` // base64url exponent
}

func (j jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, errors.New("RSA exponent too large")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
}
