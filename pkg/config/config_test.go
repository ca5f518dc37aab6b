package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// usersYAML is a minimal valid auth section.
const usersYAML = `
auth:
  verifier:
    static:
      users:
        - username: bob
          token: t123
`

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.MaxBodyBytes != 1<<20 {
		t.Errorf("default server.max_body_bytes = %d, want 1MiB", cfg.Server.MaxBodyBytes)
	}
	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
	if cfg.Auth.Type != "token" {
		t.Errorf("default auth.type = %q, want \"token\"", cfg.Auth.Type)
	}
	if cfg.Auth.Verifier.Type != "static" {
		t.Errorf("default auth.verifier.type = %q, want \"static\"", cfg.Auth.Verifier.Type)
	}
	if cfg.Auth.Verifier.Postgres.MaxConns != 10 {
		t.Errorf("default auth.verifier.postgres.max_conns = %d, want 10", cfg.Auth.Verifier.Postgres.MaxConns)
	}
	if cfg.Auth.Verifier.JWT.CacheTTL != time.Hour {
		t.Errorf("default auth.verifier.jwt.cache_ttl = %v, want 1h", cfg.Auth.Verifier.JWT.CacheTTL)
	}
	if c := cfg.Auth.Verifier.Cache; c.Enabled || c.TTL != 30*time.Second || c.MaxSize != 10000 {
		t.Errorf("default auth.verifier.cache = %+v", c)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("default metrics = %+v", cfg.Observability.Metrics)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  read_timeout: 60s
  write_timeout: 45s
logging:
  level: DEBUG
  format: json
  debug: strategy,verifier
auth:
  type: token
  abstain_on_missing: true
  bad_request_message: "credentials required"
  token:
    username_header: X-User
    token_header: X-Api-Token
    username_field: "profile[username]"
    token_field: "profile[token]"
    verify_timeout: 5s
  verifier:
    type: static
    static:
      users:
        - username: alice
          token: sk-alice
          tenant_id: org-1
          service_tier: premium
          scopes: [read, write]
        - username: bob
          token_hash: 0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef
  rate_limit:
    default_rpm: 60
    tiers:
      premium: 600
observability:
  metrics:
    enabled: false
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.ReadTimeout != 60*time.Second || cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" || cfg.Logging.Debug != "strategy,verifier" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.Auth.AbstainOnMissing || cfg.Auth.BadRequestMessage != "credentials required" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	tc := cfg.Auth.Token
	if tc.UsernameHeader != "X-User" || tc.TokenHeader != "X-Api-Token" {
		t.Errorf("auth.token headers = %q, %q", tc.UsernameHeader, tc.TokenHeader)
	}
	if tc.UsernameField != "profile[username]" || tc.TokenField != "profile[token]" {
		t.Errorf("auth.token fields = %q, %q", tc.UsernameField, tc.TokenField)
	}
	if tc.VerifyTimeout != 5*time.Second {
		t.Errorf("auth.token.verify_timeout = %v, want 5s", tc.VerifyTimeout)
	}

	users := cfg.Auth.Verifier.Static.Users
	if len(users) != 2 {
		t.Fatalf("static users = %d, want 2", len(users))
	}
	if users[0].Username != "alice" || users[0].TenantID != "org-1" || len(users[0].Scopes) != 2 {
		t.Errorf("users[0] = %+v", users[0])
	}
	if users[1].TokenHash == "" {
		t.Errorf("users[1].token_hash not loaded")
	}

	if cfg.Auth.RateLimit.DefaultRPM != 60 || cfg.Auth.RateLimit.Tiers["premium"] != 600 {
		t.Errorf("rate_limit = %+v", cfg.Auth.RateLimit)
	}
	if cfg.Observability.Metrics.Enabled {
		t.Error("metrics.enabled = true, want false")
	}
}

func TestLoadBackends(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "postgres",
			yaml: `
auth:
  verifier:
    type: postgres
    postgres:
      dsn: postgres://u:p@db/app
      max_conns: 4
      migrate_on_start: true
    cache:
      enabled: true
      ttl: 1m
`,
			check: func(t *testing.T, cfg *Config) {
				pg := cfg.Auth.Verifier.Postgres
				if pg.DSN != "postgres://u:p@db/app" || pg.MaxConns != 4 || !pg.MigrateOnStart {
					t.Errorf("postgres = %+v", pg)
				}
				c := cfg.Auth.Verifier.Cache
				if !c.Enabled || c.TTL != time.Minute || c.MaxSize != 10000 {
					t.Errorf("cache = %+v", c)
				}
			},
		},
		{
			name: "redis",
			yaml: `
auth:
  verifier:
    type: redis
    redis:
      addr: cache:6379
      db: 2
      key_prefix: "users:"
`,
			check: func(t *testing.T, cfg *Config) {
				r := cfg.Auth.Verifier.Redis
				if r.Addr != "cache:6379" || r.DB != 2 || r.KeyPrefix != "users:" {
					t.Errorf("redis = %+v", r)
				}
			},
		},
		{
			name: "jwt",
			yaml: `
auth:
  verifier:
    type: jwt
    jwt:
      issuer: https://auth.example.com
      audience: my-api
      jwks_url: https://auth.example.com/jwks
      user_claim: preferred_username
      cache_ttl: 10m
`,
			check: func(t *testing.T, cfg *Config) {
				j := cfg.Auth.Verifier.JWT
				if j.JWKSURL != "https://auth.example.com/jwks" || j.UserClaim != "preferred_username" || j.CacheTTL != 10*time.Minute {
					t.Errorf("jwt = %+v", j)
				}
			},
		},
		{
			name: "none",
			yaml: `
auth:
  type: none
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Auth.Type != "none" {
					t.Errorf("auth.type = %q", cfg.Auth.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, "config-*.yaml", tt.yaml))
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", `
server:
  port: 9090
auth:
  verifier:
    type: redis
    redis:
      addr: from-yaml:6379
`)

	t.Setenv("TOKENAUTH_PORT", "7070")
	t.Setenv("TOKENAUTH_REDIS_ADDR", "from-env:6379")
	t.Setenv("TOKENAUTH_VERIFY_TIMEOUT", "2s")
	t.Setenv("TOKENAUTH_ABSTAIN_ON_MISSING", "true")
	t.Setenv("TOKENAUTH_LOG_FORMAT", "json")
	t.Setenv("TOKENAUTH_VERIFIER_CACHE", "true")
	t.Setenv("TOKENAUTH_VERIFIER_CACHE_TTL", "5s")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Auth.Verifier.Redis.Addr != "from-env:6379" {
		t.Errorf("redis.addr = %q, want env override", cfg.Auth.Verifier.Redis.Addr)
	}
	if cfg.Auth.Token.VerifyTimeout != 2*time.Second {
		t.Errorf("verify_timeout = %v, want 2s", cfg.Auth.Token.VerifyTimeout)
	}
	if !cfg.Auth.AbstainOnMissing {
		t.Error("abstain_on_missing = false, want env override true")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want json", cfg.Logging.Format)
	}
	if c := cfg.Auth.Verifier.Cache; !c.Enabled || c.TTL != 5*time.Second {
		t.Errorf("verifier cache = %+v, want enabled with 5s ttl", c)
	}
}

func TestEnvStaticUsers(t *testing.T) {
	t.Setenv("TOKENAUTH_STATIC_USERS", `[{"username":"bob","token":"t123","tenant_id":"org-env","service_tier":"standard"}]`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	users := cfg.Auth.Verifier.Static.Users
	if len(users) != 1 {
		t.Fatalf("static users = %d, want 1", len(users))
	}
	if users[0].Username != "bob" || users[0].Token != "t123" || users[0].TenantID != "org-env" {
		t.Errorf("users[0] = %+v", users[0])
	}
}

func TestEnvMalformed(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", usersYAML)

	tests := []struct {
		name, key, value string
	}{
		{"port", "TOKENAUTH_PORT", "eighty"},
		{"timeout", "TOKENAUTH_VERIFY_TIMEOUT", "soon"},
		{"bool", "TOKENAUTH_METRICS_ENABLED", "maybe"},
		{"users", "TOKENAUTH_STATIC_USERS", "[{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(tmpFile)
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Load() err = %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestFileReferences(t *testing.T) {
	tokenFile := writeTemp(t, "token-*.txt", "  t-from-file  \n")
	dsnFile := writeTemp(t, "dsn-*.txt", "postgres://user:pass@db:5432/app\n")
	pwFile := writeTemp(t, "pw-*.txt", "s3cret\n")

	cfg, err := Load(writeTemp(t, "config-*.yaml", `
auth:
  verifier:
    static:
      users:
        - username: bob
          token_file: `+tokenFile+`
    postgres:
      dsn_file: `+dsnFile+`
    redis:
      password_file: `+pwFile+`
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	v := cfg.Auth.Verifier
	if v.Static.Users[0].Token != "t-from-file" {
		t.Errorf("users[0].token = %q, want trimmed file content", v.Static.Users[0].Token)
	}
	if v.Postgres.DSN != "postgres://user:pass@db:5432/app" {
		t.Errorf("postgres.dsn = %q, want DSN from file", v.Postgres.DSN)
	}
	if v.Redis.Password != "s3cret" {
		t.Errorf("redis.password = %q, want password from file", v.Redis.Password)
	}
}

func TestFileReferenceDoesNotOverrideExplicitValue(t *testing.T) {
	tokenFile := writeTemp(t, "token-*.txt", "from-file")

	cfg, err := Load(writeTemp(t, "config-*.yaml", `
auth:
  verifier:
    static:
      users:
        - username: bob
          token: explicit
          token_file: `+tokenFile+`
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Auth.Verifier.Static.Users[0].Token; got != "explicit" {
		t.Errorf("token = %q, want explicit value kept", got)
	}
}

func TestFileReferenceMissingFile(t *testing.T) {
	_, err := Load(writeTemp(t, "config-*.yaml", `
auth:
  verifier:
    static:
      users:
        - username: bob
          token_file: /nonexistent/token
`))
	if err == nil || !strings.Contains(err.Error(), "users[0].token_file") {
		t.Errorf("Load() err = %v, want token_file error", err)
	}
}

func TestFileDiscovery(t *testing.T) {
	explicit := writeTemp(t, "config-*.yaml", "server:\n  port: 1111\n"+usersYAML)
	cfg, err := Load(explicit)
	if err != nil {
		t.Fatalf("Load(explicit) error: %v", err)
	}
	if cfg.Server.Port != 1111 {
		t.Errorf("explicit path: port = %d, want 1111", cfg.Server.Port)
	}

	envFile := writeTemp(t, "envconfig-*.yaml", "server:\n  port: 2222\n"+usersYAML)
	t.Setenv("TOKENAUTH_CONFIG", envFile)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load(TOKENAUTH_CONFIG) error: %v", err)
	}
	if cfg.Server.Port != 2222 {
		t.Errorf("TOKENAUTH_CONFIG: port = %d, want 2222", cfg.Server.Port)
	}

	// Explicit path wins over the env var.
	cfg, err = Load(explicit)
	if err != nil {
		t.Fatalf("Load(explicit over env) error: %v", err)
	}
	if cfg.Server.Port != 1111 {
		t.Errorf("explicit over env: port = %d, want 1111", cfg.Server.Port)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	_, err := Load(writeTemp(t, "config-*.yaml", usersYAML+"engine:\n  provider: vllm\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestEmptyFile(t *testing.T) {
	t.Setenv("TOKENAUTH_AUTH_TYPE", "none")
	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load(empty) error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestYAMLDefaultsMerge(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config-*.yaml", "server:\n  port: 9999\n"+usersYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("read_timeout = %v, want default 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.Verifier.Redis.Addr != "localhost:6379" {
		t.Errorf("redis.addr = %q, want default", cfg.Auth.Verifier.Redis.Addr)
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("metrics.path = %q, want default", cfg.Observability.Metrics.Path)
	}
}

func TestValidation(t *testing.T) {
	valid := func() Config {
		c := Defaults()
		c.Auth.Verifier.Static.Users = []UserConfig{{Username: "bob", Token: "t123"}}
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad auth type", func(c *Config) { c.Auth.Type = "apikey" }, "auth.type"},
		{"bad verifier type", func(c *Config) { c.Auth.Verifier.Type = "ldap" }, "auth.verifier.type"},
		{"no static users", func(c *Config) { c.Auth.Verifier.Static.Users = nil }, "static.users must not be empty"},
		{"user without username", func(c *Config) {
			c.Auth.Verifier.Static.Users = []UserConfig{{Token: "x"}}
		}, "users[0].username"},
		{"user without token", func(c *Config) {
			c.Auth.Verifier.Static.Users = []UserConfig{{Username: "x"}}
		}, "users[0]: token"},
		{"postgres without dsn", func(c *Config) { c.Auth.Verifier.Type = "postgres" }, "postgres.dsn"},
		{"redis without addr", func(c *Config) {
			c.Auth.Verifier.Type = "redis"
			c.Auth.Verifier.Redis.Addr = ""
		}, "redis.addr"},
		{"jwt without jwks", func(c *Config) { c.Auth.Verifier.Type = "jwt" }, "jwks_url"},
		{"negative timeout", func(c *Config) { c.Auth.Token.VerifyTimeout = -time.Second }, "verify_timeout"},
		{"pass request", func(c *Config) { c.Auth.Token.PassRequestToVerifier = true }, "pass_request_to_verifier"},
		{"negative rpm", func(c *Config) { c.Auth.RateLimit.DefaultRPM = -1 }, "default_rpm"},
		{"negative tier rpm", func(c *Config) {
			c.Auth.RateLimit.Tiers = map[string]int{"gold": -5}
		}, "tiers[gold]"},
		{"cache without ttl", func(c *Config) {
			c.Auth.Verifier.Cache = CacheConfig{Enabled: true, MaxSize: 10}
		}, "cache.ttl"},
		{"cache without size", func(c *Config) {
			c.Auth.Verifier.Cache = CacheConfig{Enabled: true, TTL: time.Second}
		}, "cache.max_size"},
		{"disabled cache ignores settings", func(c *Config) {
			c.Auth.Verifier.Cache = CacheConfig{}
		}, ""},
		{"metrics path", func(c *Config) { c.Observability.Metrics.Path = "metrics" }, "metrics.path"},
		{"auth none skips verifier", func(c *Config) {
			c.Auth.Type = "none"
			c.Auth.Verifier.Type = "ldap"
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Auth.Verifier.Type = "ldap"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.port", "auth.verifier.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("writing temp file: %v", err)
	}
	f.Close()
	return f.Name()
}
