package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

// testKeyPair holds the RSA key pair used throughout the tests.
var testKeyPair *rsa.PrivateKey

func init() {
	var err error
	testKeyPair, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(fmt.Sprintf("generating test RSA key: %v", err))
	}
}

const testKID = "test-key-1"

// jwksHandler serves the test public key and counts fetches.
func jwksHandler(fetchCount *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fetchCount != nil {
			fetchCount.Add(1)
		}
		pub := testKeyPair.PublicKey
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKID,
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}
}

func signToken(t *testing.T, kid string, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(testKeyPair)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func validClaims(sub string) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": sub,
		"iss": "https://auth.example.com",
		"aud": "my-api",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func newTestVerifier(t *testing.T, override func(*Config), fetchCount *atomic.Int32) *Verifier {
	t.Helper()
	srv := httptest.NewServer(jwksHandler(fetchCount))
	t.Cleanup(srv.Close)

	cfg := Config{
		Issuer:   "https://auth.example.com",
		Audience: "my-api",
		JWKSURL:  srv.URL + "/.well-known/jwks.json",
	}
	if override != nil {
		override(&cfg)
	}
	v, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return v
}

type result struct {
	err  error
	user any
	info any
}

func verify(v *Verifier, username, tok string) result {
	var r result
	v.Verify(context.Background(), username, tok, func(err error, user, info any) {
		r = result{err, user, info}
	})
	return r
}

func assertRejected(t *testing.T, r result) {
	t.Helper()
	if r.err != nil || r.user != nil {
		t.Fatalf("result = %+v, want rejection", r)
	}
	if err, _ := r.info.(error); !errors.Is(err, verifier.ErrInvalidCredentials) {
		t.Errorf("info = %v, want ErrInvalidCredentials", r.info)
	}
}

func TestNew_RequiresJWKSURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without JWKS URL")
	}
}

func TestJWT_Valid(t *testing.T) {
	v := newTestVerifier(t, nil, nil)
	claims := validClaims("bob")
	claims["tenant_id"] = "org-1"
	claims["service_tier"] = "premium"
	claims["scope"] = "read write"

	r := verify(v, "bob", signToken(t, testKID, claims))

	id, ok := r.user.(*auth.Identity)
	if r.err != nil || !ok {
		t.Fatalf("result = %+v, want identity", r)
	}
	if id.Subject != "bob" || id.TenantID() != "org-1" || id.ServiceTier != "premium" {
		t.Errorf("identity = %+v", id)
	}
	if !reflect.DeepEqual(id.Scopes, []string{"read", "write"}) {
		t.Errorf("Scopes = %v", id.Scopes)
	}
}

func TestJWT_SubjectMismatch(t *testing.T) {
	v := newTestVerifier(t, nil, nil)
	assertRejected(t, verify(v, "alice", signToken(t, testKID, validClaims("bob"))))
}

func TestJWT_Rejections(t *testing.T) {
	v := newTestVerifier(t, nil, nil)

	expired := validClaims("bob")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAud := validClaims("bob")
	wrongAud["aud"] = "other-api"

	wrongIss := validClaims("bob")
	wrongIss["iss"] = "https://evil.example.com"

	noExp := validClaims("bob")
	delete(noExp, "exp")

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, testKID, expired)},
		{"wrong audience", signToken(t, testKID, wrongAud)},
		{"wrong issuer", signToken(t, testKID, wrongIss)},
		{"missing exp", signToken(t, testKID, noExp)},
		{"unknown kid", signToken(t, "other-key", validClaims("bob"))},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRejected(t, verify(v, "bob", tt.token))
		})
	}
}

func TestJWT_JWKSUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	v, err := New(Config{JWKSURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	r := verify(v, "bob", signToken(t, testKID, validClaims("bob")))
	if !errors.Is(r.err, ErrJWKSUnavailable) {
		t.Fatalf("err = %v, want ErrJWKSUnavailable", r.err)
	}
	if r.user != nil || r.info != nil {
		t.Errorf("result = %+v, want error only", r)
	}
}

func TestJWT_JWKSCaching(t *testing.T) {
	var fetches atomic.Int32
	v := newTestVerifier(t, nil, &fetches)
	tok := signToken(t, testKID, validClaims("bob"))

	for i := 0; i < 5; i++ {
		if r := verify(v, "bob", tok); r.user == nil {
			t.Fatalf("request %d: result = %+v", i, r)
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("JWKS fetch count = %d, want 1", n)
	}
}

func TestJWT_UnknownKidRefreshThrottled(t *testing.T) {
	var fetches atomic.Int32
	v := newTestVerifier(t, nil, &fetches)

	now := time.Now()
	v.keys.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assertRejected(t, verify(v, "bob", signToken(t, "rotated", validClaims("bob"))))
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("JWKS fetch count = %d, want 1 within minRefresh", n)
	}

	now = now.Add(time.Minute)
	verify(v, "bob", signToken(t, "rotated", validClaims("bob")))
	if n := fetches.Load(); n != 2 {
		t.Errorf("JWKS fetch count = %d, want 2 after minRefresh", n)
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	v := newTestVerifier(t, func(c *Config) {
		c.UserClaim = "preferred_username"
		c.TenantClaim = "org"
		c.ScopesClaim = "permissions"
	}, nil)

	claims := validClaims("user-123")
	claims["preferred_username"] = "bob"
	claims["org"] = "acme"
	claims["permissions"] = []any{"read", 7, "admin"}

	r := verify(v, "bob", signToken(t, testKID, claims))
	id, ok := r.user.(*auth.Identity)
	if !ok {
		t.Fatalf("result = %+v, want identity", r)
	}
	if id.Subject != "bob" || id.TenantID() != "acme" {
		t.Errorf("identity = %+v", id)
	}
	if !reflect.DeepEqual(id.Scopes, []string{"read", "admin"}) {
		t.Errorf("Scopes = %v", id.Scopes)
	}
}

func TestJWT_NoIssuerOrAudienceValidation(t *testing.T) {
	v := newTestVerifier(t, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
	}, nil)

	claims := validClaims("bob")
	claims["iss"] = "anyone"
	claims["aud"] = "anything"

	if r := verify(v, "bob", signToken(t, testKID, claims)); r.user == nil {
		t.Errorf("result = %+v, want identity", r)
	}
}
