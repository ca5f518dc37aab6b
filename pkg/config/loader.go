package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TOKENAUTH_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TOKENAUTH_CONFIG env, ./config.yaml, /etc/tokenauth/config.yaml)
//  3. TOKENAUTH_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TOKENAUTH_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/tokenauth/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/tokenauth/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps TOKENAUTH_* environment variables to config fields.
// Malformed numeric or duration values are reported as errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	setInt("PORT", &cfg.Server.Port)
	setString("LOG_FORMAT", &cfg.Logging.Format)

	setString("AUTH_TYPE", &cfg.Auth.Type)
	setBool("ABSTAIN_ON_MISSING", &cfg.Auth.AbstainOnMissing)
	setDuration("VERIFY_TIMEOUT", &cfg.Auth.Token.VerifyTimeout)
	setString("VERIFIER", &cfg.Auth.Verifier.Type)
	setString("POSTGRES_DSN", &cfg.Auth.Verifier.Postgres.DSN)
	setString("REDIS_ADDR", &cfg.Auth.Verifier.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Auth.Verifier.Redis.Password)
	setString("JWKS_URL", &cfg.Auth.Verifier.JWT.JWKSURL)
	setBool("VERIFIER_CACHE", &cfg.Auth.Verifier.Cache.Enabled)
	setDuration("VERIFIER_CACHE_TTL", &cfg.Auth.Verifier.Cache.TTL)
	setInt("RATE_LIMIT_RPM", &cfg.Auth.RateLimit.DefaultRPM)
	setBool("METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)

	// TOKENAUTH_STATIC_USERS: JSON array of static user configs.
	if v := os.Getenv(EnvPrefix + "STATIC_USERS"); v != "" {
		users, err := parseUsersJSON(v)
		if err != nil {
			errs = append(errs, err)
		} else if len(users) > 0 {
			cfg.Auth.Verifier.Static.Users = users
		}
	}

	return errors.Join(errs...)
}

// parseUsersJSON parses a JSON array of static user configurations.
func parseUsersJSON(jsonStr string) ([]UserConfig, error) {
	var users []UserConfig
	if err := json.Unmarshal([]byte(jsonStr), &users); err != nil {
		return nil, fmt.Errorf("parsing %sSTATIC_USERS: %w", EnvPrefix, err)
	}
	return users, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	v := &cfg.Auth.Verifier

	if v.Postgres.DSNFile != "" && v.Postgres.DSN == "" {
		val, err := readSecretFile(v.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("auth.verifier.postgres.dsn_file: %w", err)
		}
		v.Postgres.DSN = val
	}

	if v.Redis.PasswordFile != "" && v.Redis.Password == "" {
		val, err := readSecretFile(v.Redis.PasswordFile)
		if err != nil {
			return fmt.Errorf("auth.verifier.redis.password_file: %w", err)
		}
		v.Redis.Password = val
	}

	for i := range v.Static.Users {
		u := &v.Static.Users[i]
		if u.TokenFile != "" && u.Token == "" {
			val, err := readSecretFile(u.TokenFile)
			if err != nil {
				return fmt.Errorf("auth.verifier.static.users[%d].token_file: %w", i, err)
			}
			u.Token = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
