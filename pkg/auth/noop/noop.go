// Package noop provides an authenticator that accepts every request.
// Used when auth.type is "none".
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/tokenauth/pkg/auth"
)

// Authenticator always returns Yes. The zero value reports an anonymous
// identity in the default tier.
type Authenticator struct {
	Identity auth.Identity
}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	id := a.Identity
	if id.Subject == "" {
		id.Subject = "anonymous"
	}
	if id.ServiceTier == "" {
		id.ServiceTier = "default"
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
