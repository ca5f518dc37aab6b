// Package jwt provides a verifier that accepts a signed JWT as the token.
// The token is validated against a JWKS endpoint and its user claim must
// equal the presented username.
//
// It supports RSA-signed JWTs with configurable issuer, audience,
// and custom claim extraction for tenant, tier, and scopes.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

// Config holds the JWT verifier configuration.
type Config struct {
	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// Audience is the expected aud claim. If empty, audience is not validated.
	Audience string

	// JWKSURL is the URL of the JSON Web Key Set.
	JWKSURL string

	// UserClaim must match the presented username. Default: "sub".
	UserClaim string

	// TenantClaim is the claim used for tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// TierClaim is the claim used for the service tier. Default: "service_tier".
	TierClaim string

	// ScopesClaim is the claim used for scopes. Default: "scope".
	// The value can be a space-separated string or a JSON array.
	ScopesClaim string

	// CacheTTL controls how long JWKS keys are cached. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient is used for JWKS fetches. Default: a client with a 10s timeout.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "service_tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Verifier validates JWT tokens.
type Verifier struct {
	config Config
	keys   *keySet
}

// New creates a JWT verifier.
func New(cfg Config) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks url is required")
	}
	cfg.applyDefaults()
	return &Verifier{
		config: cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
	}, nil
}

// Verify parses tok as a JWT. An unreachable JWKS endpoint is reported
// as an error; every other validation failure is a rejection.
func (v *Verifier) Verify(ctx context.Context, username, tok string, done token.DoneFunc) {
	parsed, err := jwtlib.Parse(tok, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return v.keys.get(ctx, kid)
	}, v.parserOptions()...)
	if err != nil {
		if errors.Is(err, ErrJWKSUnavailable) {
			done(err, nil, nil)
			return
		}
		slog.Debug("JWT validation failed", "error", err)
		done(nil, nil, fmt.Errorf("%w: %v", verifier.ErrInvalidCredentials, err))
		return
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}

	if subject := claimString(claims, v.config.UserClaim); subject == "" || subject != username {
		done(nil, nil, fmt.Errorf("%w: %s claim does not match username", verifier.ErrInvalidCredentials, v.config.UserClaim))
		return
	}

	rec := verifier.Record{
		TenantID:    claimString(claims, v.config.TenantClaim),
		ServiceTier: claimString(claims, v.config.TierClaim),
		Scopes:      claimScopes(claims, v.config.ScopesClaim),
	}
	done(nil, rec.Identity(username), nil)
}

func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(v.config.Audience))
	}
	return opts
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimScopes reads a space-separated string or a JSON array of strings.
func claimScopes(claims jwtlib.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		if parts := strings.Fields(val); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
