// Command tokenctl manages user tokens for the postgres and redis
// verifiers and hashes tokens for the static verifier.
//
// Usage:
//
//	tokenctl hash <token>
//	tokenctl register -username bob [-token t] [-tenant org] [-tier premium] [-scopes read,write] [-ttl 720h]
//	tokenctl revoke -username bob
//
// register and revoke read the same config as the server (-config,
// TOKENAUTH_CONFIG, ...). When -token is omitted, a random token is
// generated and printed once.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rhuss/tokenauth/pkg/config"
	"github.com/rhuss/tokenauth/pkg/verifier"
	"github.com/rhuss/tokenauth/pkg/verifier/postgres"
	"github.com/rhuss/tokenauth/pkg/verifier/redis"
)

// store is implemented by the verifiers that support token management.
type store interface {
	Register(ctx context.Context, username, tok string, rec verifier.Record, ttl time.Duration) error
	Revoke(ctx context.Context, username string) error
	Close() error
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tokenctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: tokenctl <hash|register|revoke> [flags]")
	}

	switch args[0] {
	case "hash":
		if len(args) != 2 {
			return errors.New("usage: tokenctl hash <token>")
		}
		fmt.Fprintln(out, verifier.HashToken(args[1]))
		return nil
	case "register":
		return register(ctx, args[1:], out)
	case "revoke":
		return revoke(ctx, args[1:], out)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func register(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	username := fs.String("username", "", "username (required)")
	tok := fs.String("token", "", "token; generated when empty")
	subject := fs.String("subject", "", "identity subject (default: username)")
	tenant := fs.String("tenant", "", "tenant id")
	tier := fs.String("tier", "", "service tier")
	scopes := fs.String("scopes", "", "comma-separated scopes")
	ttl := fs.Duration("ttl", 0, "token lifetime; 0 never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("-username is required")
	}

	generated := *tok == ""
	if generated {
		t, err := generateToken()
		if err != nil {
			return err
		}
		*tok = t
	}

	s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	rec := verifier.Record{Subject: *subject, TenantID: *tenant, ServiceTier: *tier, Scopes: splitScopes(*scopes)}
	if err := s.Register(ctx, *username, *tok, rec, *ttl); err != nil {
		return err
	}

	if generated {
		fmt.Fprintf(out, "registered %s, token: %s\n", *username, *tok)
	} else {
		fmt.Fprintf(out, "registered %s\n", *username)
	}
	return nil
}

func revoke(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	username := fs.String("username", "", "username (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("-username is required")
	}

	s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Revoke(ctx, *username); err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked %s\n", *username)
	return nil
}

func openStore(ctx context.Context, configPath string) (store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	v := cfg.Auth.Verifier
	switch v.Type {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:            v.Postgres.DSN,
			MaxConns:       2,
			MigrateOnStart: v.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		return pgStore{pg}, nil
	case "redis":
		rv, err := redis.New(ctx, redis.Config{
			Addr:      v.Redis.Addr,
			Username:  v.Redis.Username,
			Password:  v.Redis.Password,
			DB:        v.Redis.DB,
			KeyPrefix: v.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return rv, nil
	}
	return nil, fmt.Errorf("verifier type %q does not support token management", v.Type)
}

// pgStore adapts the postgres verifier's absolute expiry to a ttl.
type pgStore struct {
	*postgres.Verifier
}

func (s pgStore) Register(ctx context.Context, username, tok string, rec verifier.Record, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	return s.Verifier.Register(ctx, username, tok, rec, expires)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func splitScopes(s string) []string {
	var scopes []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			scopes = append(scopes, part)
		}
	}
	return scopes
}
