// Package tokenauth plugs the username/token strategy into the auth chain.
//
// The adapter turns an *http.Request into a token.Request, runs the
// strategy, and binds its three completion signals to chain decisions:
// success to Yes, failure to No, and error to Error.
package tokenauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/debug"
	"github.com/rhuss/tokenauth/pkg/token"
)

// ErrUnsupportedUser is reported when a verifier accepts credentials but
// returns a user value that cannot be turned into an identity.
var ErrUnsupportedUser = errors.New("verifier returned an unsupported user value")

// Config holds adapter settings.
type Config struct {
	// AbstainOnMissing makes requests without credentials fall through to
	// the next authenticator instead of being rejected.
	AbstainOnMissing bool

	// BadRequestMessage overrides the "Missing credentials" message.
	BadRequestMessage string

	// MaxBodyBytes caps body reads. Default: DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Authenticator is an auth.Authenticator backed by a token.Strategy.
type Authenticator struct {
	strategy *token.Strategy
	config   Config
}

var _ auth.Authenticator = (*Authenticator)(nil)

// New creates an adapter for s.
func New(s *token.Strategy, cfg Config) *Authenticator {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Authenticator{strategy: s, config: cfg}
}

// Authenticate runs the strategy against r.
//
// Decision outcomes:
//   - Yes: the verifier accepted the credentials
//   - No: credentials missing or rejected
//   - Abstain: credentials missing and AbstainOnMissing is set
//   - Error: the verifier failed or returned an unusable user
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	req, err := RequestFromHTTP(r, a.config.MaxBodyBytes)
	if err != nil {
		// Unreadable bodies count as "no credentials in the body".
		debug.Log("auth", "request body ignored", "path", r.URL.Path, "error", err)
	}

	var opts []token.CallOption
	if a.config.BadRequestMessage != "" {
		opts = append(opts, token.WithBadRequestMessage(a.config.BadRequestMessage))
	}

	out := a.strategy.Authenticate(ctx, req, opts...)
	if out.MissingCredentials() && a.config.AbstainOnMissing {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	var result auth.AuthResult
	out.Dispatch(token.HooksFuncs{
		OnSuccess: func(user, _ any) {
			id, err := IdentityFromUser(user)
			if err != nil {
				result = auth.AuthResult{Decision: auth.Error, Err: err}
				return
			}
			result = auth.AuthResult{Decision: auth.Yes, Identity: id}
		},
		OnFail: func(info any) {
			result = auth.AuthResult{Decision: auth.No, Err: rejection(info)}
		},
		OnError: func(err error) {
			result = auth.AuthResult{Decision: auth.Error, Err: err}
		},
	})
	return result
}

// IdentityFromUser converts a verifier's user value into an identity.
// Accepted shapes: *auth.Identity, auth.Identity, string (the subject),
// fmt.Stringer, and map[string]string or map[string]any records. A map
// needs a non-empty "subject" or "id"; "service_tier" and "scopes" fill
// the matching fields and other string entries land in Metadata. The
// returned identity is a copy.
func IdentityFromUser(user any) (*auth.Identity, error) {
	switch u := user.(type) {
	case *auth.Identity:
		if u == nil {
			break
		}
		id := *u
		return &id, nil
	case auth.Identity:
		return &u, nil
	case string:
		return &auth.Identity{Subject: u}, nil
	case fmt.Stringer:
		return &auth.Identity{Subject: u.String()}, nil
	case map[string]string:
		m := make(map[string]any, len(u))
		for k, v := range u {
			m[k] = v
		}
		return identityFromMap(m)
	case map[string]any:
		return identityFromMap(u)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedUser, user)
}

func identityFromMap(m map[string]any) (*auth.Identity, error) {
	id := &auth.Identity{}
	for k, v := range m {
		switch k {
		case "subject", "id":
			// resolved below, "subject" first
		case "scopes":
			id.Scopes = stringList(v)
		case "service_tier":
			id.ServiceTier, _ = v.(string)
		default:
			if s, ok := v.(string); ok {
				if id.Metadata == nil {
					id.Metadata = make(map[string]string)
				}
				id.Metadata[k] = s
			}
		}
	}

	for _, k := range []string{"subject", "id"} {
		switch v := m[k].(type) {
		case string:
			id.Subject = v
		case fmt.Stringer:
			id.Subject = v.String()
		case nil:
		default:
			id.Subject = fmt.Sprint(v)
		}
		if id.Subject != "" {
			return id, nil
		}
	}
	return nil, fmt.Errorf("%w: map without subject or id", ErrUnsupportedUser)
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(l)
	}
	return nil
}

// rejection turns rejection info into the error carried by a No decision.
func rejection(info any) error {
	switch v := info.(type) {
	case nil:
		return auth.ErrUnauthenticated
	case error:
		return v
	case string:
		return fmt.Errorf("%w: %s", auth.ErrUnauthenticated, v)
	}
	return fmt.Errorf("%w: %v", auth.ErrUnauthenticated, info)
}
