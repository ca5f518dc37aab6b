// Package config provides unified configuration for the tokenauth server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TOKENAUTH_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/tokenauth/pkg/token"
)

// Config holds all configuration for the tokenauth server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`   // default: 1 MiB
}

// LoggingConfig holds slog and debug category settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type              string          `yaml:"type"` // "none" or "token", default: "token"
	AbstainOnMissing  bool            `yaml:"abstain_on_missing"`
	BadRequestMessage string          `yaml:"bad_request_message"`
	Token             token.Config    `yaml:"token"`
	Verifier          VerifierConfig  `yaml:"verifier"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// VerifierConfig selects and configures the credential backend.
type VerifierConfig struct {
	Type     string         `yaml:"type"` // "static", "postgres", "redis", "jwt"; default: "static"
	Static   StaticConfig   `yaml:"static"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Cache    CacheConfig    `yaml:"cache"`
}

// CacheConfig holds settings for caching successful verifications in
// front of the selected backend.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`      // default: 30s
	MaxSize int           `yaml:"max_size"` // default: 10000
}

// StaticConfig lists users for the static verifier.
type StaticConfig struct {
	Users []UserConfig `yaml:"users"`
}

// UserConfig describes a single static user.
type UserConfig struct {
	Username    string   `yaml:"username" json:"username"`
	Token       string   `yaml:"token" json:"token"`
	TokenFile   string   `yaml:"token_file" json:"token_file"` // _file variant for token
	TokenHash   string   `yaml:"token_hash" json:"token_hash"` // hex SHA-256 of the token
	Subject     string   `yaml:"subject" json:"subject"`
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// PostgresConfig holds PostgreSQL verifier settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// RedisConfig holds Redis verifier settings.
type RedisConfig struct {
	Addr         string `yaml:"addr"` // default: "localhost:6379"
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	DB           int    `yaml:"db"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// JWTConfig holds JWT verifier settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TenantClaim string        `yaml:"tenant_claim"` // default: "tenant_id"
	TierClaim   string        `yaml:"tier_claim"`   // default: "service_tier"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// RateLimitConfig holds per-tier request limits. Zero disables limiting.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Auth: AuthConfig{
			Type: "token",
			Verifier: VerifierConfig{
				Type: "static",
				Postgres: PostgresConfig{
					MaxConns: 10,
				},
				Redis: RedisConfig{
					Addr: "localhost:6379",
				},
				JWT: JWTConfig{
					CacheTTL: time.Hour,
				},
				Cache: CacheConfig{
					TTL:     30 * time.Second,
					MaxSize: 10000,
				},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
