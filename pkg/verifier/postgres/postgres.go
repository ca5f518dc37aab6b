// Package postgres provides a token verifier backed by a PostgreSQL
// user_tokens table. It uses pgx/v5 for connection pooling. Tokens are
// stored as SHA-256 digests.
package postgres

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

// Sentinel errors for token management.
var (
	ErrUserExists  = errors.New("user already registered")
	ErrUnknownUser = errors.New("unknown user")
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Verifier checks credentials against the user_tokens table.
type Verifier struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to PostgreSQL with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	v := &Verifier{pool: pool, now: time.Now}

	if cfg.MigrateOnStart {
		if err := v.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return v, nil
}

// Verify looks up username and compares tok against the stored digest.
// Unknown, revoked, and expired users are rejected; query failures are
// reported as errors.
func (v *Verifier) Verify(ctx context.Context, username, tok string, done token.DoneFunc) {
	var (
		hash      []byte
		rec       verifier.Record
		expiresAt *time.Time
		revokedAt *time.Time
	)
	err := v.pool.QueryRow(ctx, `
		SELECT token_hash, subject, tenant_id, service_tier, scopes, expires_at, revoked_at
		FROM user_tokens
		WHERE username = $1
	`, username).Scan(&hash, &rec.Subject, &rec.TenantID, &rec.ServiceTier, &rec.Scopes, &expiresAt, &revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}
	if err != nil {
		done(fmt.Errorf("querying user token: %w", err), nil, nil)
		return
	}

	candidate := verifier.HashToken(tok)
	if subtle.ConstantTimeCompare(hash, candidate[:]) != 1 {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}
	if revokedAt != nil || (expiresAt != nil && !v.now().Before(*expiresAt)) {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}

	done(nil, rec.Identity(username), nil)
}

// Register stores a token for username. A zero expiresAt means the token
// does not expire.
func (v *Verifier) Register(ctx context.Context, username, tok string, rec verifier.Record, expiresAt time.Time) error {
	hash := verifier.HashToken(tok)

	var expires *time.Time
	if !expiresAt.IsZero() {
		expires = &expiresAt
	}
	scopes := rec.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err := v.pool.Exec(ctx, `
		INSERT INTO user_tokens (username, token_hash, subject, tenant_id, service_tier, scopes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, username, hash[:], rec.Subject, rec.TenantID, rec.ServiceTier, scopes, expires)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrUserExists
		}
		return fmt.Errorf("inserting user token: %w", err)
	}
	return nil
}

// Revoke marks the token for username as revoked.
func (v *Verifier) Revoke(ctx context.Context, username string) error {
	tag, err := v.pool.Exec(ctx, `
		UPDATE user_tokens SET revoked_at = now()
		WHERE username = $1 AND revoked_at IS NULL
	`, username)
	if err != nil {
		return fmt.Errorf("revoking user token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownUser
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (v *Verifier) HealthCheck(ctx context.Context) error {
	return v.pool.Ping(ctx)
}

// Close closes the connection pool.
func (v *Verifier) Close() error {
	v.pool.Close()
	return nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
