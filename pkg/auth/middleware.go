package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/tokenauth/pkg/observability"
	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/transport"
)

// Middleware creates HTTP middleware from an AuthChain and optional RateLimiter.
// It checks the bypass list, runs authentication, injects identity and
// tenant context, and optionally enforces rate limits.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			switch result.Decision {
			case Error:
				slog.Error("authentication backend failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServerError, "internal authentication error")
				return

			case No:
				var badReq *token.BadRequestError
				if errors.As(result.Err, &badReq) {
					slog.Warn("authentication failed: missing credentials",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
					)
					transport.WriteError(w, http.StatusBadRequest, transport.ErrorTypeInvalidRequest, badReq.Message)
					return
				}
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				transport.WriteError(w, http.StatusUnauthorized, transport.ErrorTypeInvalidRequest, "authentication required")
				return
			}

			if result.Decision != Yes || result.Identity == nil {
				transport.WriteError(w, http.StatusUnauthorized, transport.ErrorTypeInvalidRequest, "authentication required")
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteError(w, http.StatusInternalServerError, transport.ErrorTypeServerError, "internal authentication error")
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(result.Identity)).Inc()
					transport.WriteError(w, http.StatusTooManyRequests, transport.ErrorTypeTooManyRequests, "rate limit exceeded")
					return
				}
			}

			ctx := SetIdentity(r.Context(), result.Identity)
			if tenantID := result.Identity.TenantID(); tenantID != "" {
				ctx = SetTenant(ctx, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
