// Command server runs the tokenauth HTTP service.
//
// Configuration is read from a YAML file (-config, TOKENAUTH_CONFIG,
// ./config.yaml, or /etc/tokenauth/config.yaml) with TOKENAUTH_*
// environment overrides. See pkg/config for the full schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/auth/tokenauth"
	"github.com/rhuss/tokenauth/pkg/config"
	"github.com/rhuss/tokenauth/pkg/debug"
	"github.com/rhuss/tokenauth/pkg/server"
	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/verifier"
	"github.com/rhuss/tokenauth/pkg/verifier/cache"
	"github.com/rhuss/tokenauth/pkg/verifier/jwt"
	"github.com/rhuss/tokenauth/pkg/verifier/postgres"
	"github.com/rhuss/tokenauth/pkg/verifier/redis"
	"github.com/rhuss/tokenauth/pkg/verifier/static"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)
	if cats := debug.Categories(); len(cats) > 0 {
		slog.Info("debug categories enabled", "categories", cats)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := server.Options{
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
		Readiness:      map[string]server.ReadinessCheck{},
	}

	if cfg.Auth.Type == "token" {
		b, err := newBackend(ctx, cfg.Auth.Verifier)
		if err != nil {
			return fmt.Errorf("creating %s verifier: %w", cfg.Auth.Verifier.Type, err)
		}
		defer b.Close()
		if b.ready != nil {
			opts.Readiness["verifier"] = b.ready
		}

		verify := b.verify
		if c := cfg.Auth.Verifier.Cache; c.Enabled {
			verify = cache.New(verify, cache.Config{TTL: c.TTL, MaxSize: c.MaxSize}).Verify
			slog.Info("verifier cache enabled", "ttl", c.TTL, "max_size", c.MaxSize)
		}

		strategy, err := token.New(cfg.Auth.Token, verify)
		if err != nil {
			return err
		}
		opts.Authenticator = tokenauth.New(strategy, tokenauth.Config{
			AbstainOnMissing:  cfg.Auth.AbstainOnMissing,
			BadRequestMessage: cfg.Auth.BadRequestMessage,
			MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		})
		slog.Info("token authentication enabled",
			"verifier", cfg.Auth.Verifier.Type,
			"username_header", strategy.Config().UsernameHeader,
			"token_header", strategy.Config().TokenHeader,
		)
	} else {
		slog.Warn("authentication disabled, all requests are anonymous")
	}

	if rl := cfg.Auth.RateLimit; rl.DefaultRPM > 0 || len(rl.Tiers) > 0 {
		opts.Limiter = auth.NewInProcessLimiter(rl.Tiers, rl.DefaultRPM)
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server.New(opts).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return server.Run(ctx, srv, cfg.Server.ShutdownTimeout)
}

// backend is a configured verifier with its lifecycle hooks.
type backend struct {
	verify token.VerifyFunc
	ready  server.ReadinessCheck
	io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newBackend(ctx context.Context, cfg config.VerifierConfig) (*backend, error) {
	switch cfg.Type {
	case "static":
		users := make([]static.User, 0, len(cfg.Static.Users))
		for _, u := range cfg.Static.Users {
			users = append(users, static.User{
				Username:  u.Username,
				Token:     u.Token,
				TokenHash: u.TokenHash,
				Record: verifier.Record{
					Subject:     u.Subject,
					TenantID:    u.TenantID,
					ServiceTier: u.ServiceTier,
					Scopes:      u.Scopes,
				},
			})
		}
		v, err := static.New(users)
		if err != nil {
			return nil, err
		}
		slog.Info("static verifier loaded", "users", v.Len())
		return &backend{verify: v.Verify, Closer: nopCloser{}}, nil

	case "postgres":
		v, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		return &backend{verify: v.Verify, ready: v.HealthCheck, Closer: v}, nil

	case "redis":
		v, err := redis.New(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return &backend{verify: v.Verify, ready: v.HealthCheck, Closer: v}, nil

	case "jwt":
		v, err := jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			TierClaim:   cfg.JWT.TierClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, err
		}
		return &backend{verify: v.Verify, Closer: nopCloser{}}, nil
	}
	return nil, fmt.Errorf("unknown verifier type %q", cfg.Type)
}
