// Package verifier holds helpers shared by the credential backends that
// plug into the token strategy.
//
// Every backend exposes
//
//	Verify(ctx context.Context, username, token string, done token.DoneFunc)
//
// so token.VerifyFunc(backend.Verify) turns it into a strategy verifier.
// Backends report bad credentials as done(nil, nil, ErrInvalidCredentials)
// and infrastructure failures as done(err, nil, nil).
package verifier

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/rhuss/tokenauth/pkg/auth"
)

// ErrInvalidCredentials is the rejection info backends report for an
// unknown username, a wrong token, or a revoked or expired token.
var ErrInvalidCredentials = errors.New("invalid username or token")

// Hash is the SHA-256 digest of a token. Plaintext tokens are never stored.
type Hash [32]byte

// HashToken hashes a plaintext token.
func HashToken(token string) Hash {
	return sha256.Sum256([]byte(token))
}

// ParseHash decodes a hex-encoded digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errors.New("token hash must be 32 bytes")
	}
	copy(h[:], b)
	return h, nil
}

// String returns the hex encoding of the digest.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Matches compares the digest against a plaintext token in constant time.
func (h Hash) Matches(token string) bool {
	candidate := HashToken(token)
	return subtle.ConstantTimeCompare(h[:], candidate[:]) == 1
}

// Record describes the identity a backend hands out for a username.
type Record struct {
	Subject     string   `json:"subject,omitempty" yaml:"subject"`
	TenantID    string   `json:"tenant_id,omitempty" yaml:"tenant_id"`
	ServiceTier string   `json:"service_tier,omitempty" yaml:"service_tier"`
	Scopes      []string `json:"scopes,omitempty" yaml:"scopes"`
}

// Identity builds the identity for username. Subject defaults to the
// username.
func (r Record) Identity(username string) *auth.Identity {
	id := &auth.Identity{
		Subject:     r.Subject,
		ServiceTier: r.ServiceTier,
		Metadata:    map[string]string{"username": username},
	}
	if id.Subject == "" {
		id.Subject = username
	}
	if len(r.Scopes) > 0 {
		id.Scopes = append([]string(nil), r.Scopes...)
	}
	if r.TenantID != "" {
		id.Metadata["tenant_id"] = r.TenantID
	}
	return id
}
