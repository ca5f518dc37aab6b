// Package server assembles the tokenauth HTTP surface: health and
// readiness probes, the Prometheus endpoint, and the authenticated
// /v1/whoami endpoint, wrapped in the transport, metrics, and auth
// middleware.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/auth/noop"
	"github.com/rhuss/tokenauth/pkg/observability"
	"github.com/rhuss/tokenauth/pkg/transport"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options configures the handler.
type Options struct {
	// Authenticator runs on every non-bypassed request. Nil accepts every
	// request as anonymous.
	Authenticator auth.Authenticator

	// Limiter enforces per-tier rate limits. Nil disables limiting.
	Limiter auth.RateLimiter

	// Readiness checks run by /readyz, keyed by name.
	Readiness map[string]ReadinessCheck

	// MetricsEnabled mounts promhttp at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string

	Logger *slog.Logger
}

// Server holds the assembled router.
type Server struct {
	opts   Options
	router chi.Router
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Authenticator == nil {
		opts.Authenticator = &noop.Authenticator{}
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{opts: opts}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	bypass := []string{"/healthz", "/readyz"}
	if s.opts.MetricsEnabled {
		bypass = append(bypass, s.opts.MetricsPath)
	}
	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{s.opts.Authenticator},
		DefaultDecision: auth.No,
	}

	r := chi.NewRouter()
	r.Use(
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.opts.Logger),
		observability.MetricsMiddleware,
		auth.Middleware(chain, s.opts.Limiter, bypass),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, http.StatusNotFound, transport.ErrorTypeNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, http.StatusMethodNotAllowed, transport.ErrorTypeInvalidRequest, "method "+r.Method+" not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", s.readyz)
	if s.opts.MetricsEnabled {
		r.Method(http.MethodGet, s.opts.MetricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/whoami", s.whoami)
		r.Post("/whoami", s.whoami)
	})

	return r
}

// WhoAmI is the /v1/whoami response body.
type WhoAmI struct {
	Identity  *auth.Identity `json:"identity"`
	TenantID  string         `json:"tenant_id,omitempty"`
	RequestID string         `json:"request_id"`
}

func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteError(w, http.StatusUnauthorized, transport.ErrorTypeInvalidRequest, "authentication required")
		return
	}
	transport.WriteJSON(w, http.StatusOK, WhoAmI{
		Identity:  id,
		TenantID:  auth.TenantFromContext(r.Context()),
		RequestID: transport.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.opts.Readiness))
	for name, check := range s.opts.Readiness {
		if err := check(ctx); err != nil {
			s.opts.Logger.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	transport.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// Run serves srv until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func Run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
