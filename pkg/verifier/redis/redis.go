// Package redis provides a token verifier backed by Redis. Each user is a
// JSON record under "<prefix><username>"; token expiry maps to key TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

// DefaultKeyPrefix namespaces user records.
const DefaultKeyPrefix = "tokenauth:user:"

// Sentinel errors for token management.
var (
	ErrUserExists  = errors.New("user already registered")
	ErrUnknownUser = errors.New("unknown user")
)

// Config holds Redis connection settings.
type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

type record struct {
	TokenHash string `json:"token_hash"`
	verifier.Record
}

// Verifier checks credentials against records stored in Redis.
type Verifier struct {
	rdb    *redis.Client
	prefix string
}

// New creates a verifier and checks connectivity.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	v := NewWithClient(rdb, cfg.KeyPrefix)
	if err := v.HealthCheck(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return v, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, prefix string) *Verifier {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Verifier{rdb: rdb, prefix: prefix}
}

func (v *Verifier) key(username string) string { return v.prefix + username }

// Verify loads the record for username and compares tok against its digest.
func (v *Verifier) Verify(ctx context.Context, username, tok string, done token.DoneFunc) {
	val, err := v.rdb.Get(ctx, v.key(username)).Result()
	if err == redis.Nil {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}
	if err != nil {
		done(fmt.Errorf("reading user record: %w", err), nil, nil)
		return
	}

	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		done(fmt.Errorf("decoding user record %q: %w", username, err), nil, nil)
		return
	}
	hash, err := verifier.ParseHash(rec.TokenHash)
	if err != nil {
		done(fmt.Errorf("decoding token hash for %q: %w", username, err), nil, nil)
		return
	}
	if !hash.Matches(tok) {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}

	done(nil, rec.Record.Identity(username), nil)
}

// Register stores a token for username. A zero ttl means the record does
// not expire.
func (v *Verifier) Register(ctx context.Context, username, tok string, rec verifier.Record, ttl time.Duration) error {
	b, err := json.Marshal(record{TokenHash: verifier.HashToken(tok).String(), Record: rec})
	if err != nil {
		return err
	}
	ok, err := v.rdb.SetNX(ctx, v.key(username), string(b), ttl).Result()
	if err != nil {
		return fmt.Errorf("storing user record: %w", err)
	}
	if !ok {
		return ErrUserExists
	}
	return nil
}

// Revoke deletes the record for username.
func (v *Verifier) Revoke(ctx context.Context, username string) error {
	n, err := v.rdb.Del(ctx, v.key(username)).Result()
	if err != nil {
		return fmt.Errorf("deleting user record: %w", err)
	}
	if n == 0 {
		return ErrUnknownUser
	}
	return nil
}

// HealthCheck pings Redis.
func (v *Verifier) HealthCheck(ctx context.Context) error {
	return v.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (v *Verifier) Close() error {
	return v.rdb.Close()
}
