package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	switch c.Auth.Type {
	case "none":
	case "token":
		errs = append(errs, c.Auth.Verifier.validate()...)
		if c.Auth.Token.VerifyTimeout < 0 {
			errs = append(errs, fmt.Errorf("auth.token.verify_timeout must not be negative"))
		}
		if c.Auth.Token.PassRequestToVerifier {
			errs = append(errs, fmt.Errorf("auth.token.pass_request_to_verifier is not supported by the configured verifiers"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\" or \"token\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must not be negative"))
	}
	for tier, rpm := range c.Auth.RateLimit.Tiers {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.tiers[%s] must not be negative", tier))
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}

func (v *VerifierConfig) validate() []error {
	var errs []error
	switch v.Type {
	case "static":
		if len(v.Static.Users) == 0 {
			errs = append(errs, fmt.Errorf("auth.verifier.static.users must not be empty when auth.verifier.type is \"static\""))
		}
		for i, u := range v.Static.Users {
			if u.Username == "" {
				errs = append(errs, fmt.Errorf("auth.verifier.static.users[%d].username is required", i))
			}
			if u.Token == "" && u.TokenHash == "" {
				errs = append(errs, fmt.Errorf("auth.verifier.static.users[%d]: token, token_file, or token_hash is required", i))
			}
		}
	case "postgres":
		if v.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("auth.verifier.postgres.dsn or auth.verifier.postgres.dsn_file is required when auth.verifier.type is \"postgres\""))
		}
	case "redis":
		if v.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("auth.verifier.redis.addr is required when auth.verifier.type is \"redis\""))
		}
	case "jwt":
		if v.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.verifier.jwt.jwks_url is required when auth.verifier.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.verifier.type must be \"static\", \"postgres\", \"redis\", or \"jwt\", got %q", v.Type))
	}
	if v.Cache.Enabled {
		if v.Cache.TTL <= 0 {
			errs = append(errs, fmt.Errorf("auth.verifier.cache.ttl must be positive when the cache is enabled"))
		}
		if v.Cache.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("auth.verifier.cache.max_size must be positive when the cache is enabled"))
		}
	}
	return errs
}
