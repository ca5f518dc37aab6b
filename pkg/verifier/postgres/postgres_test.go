package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

func init() {
	// Configure testcontainers to use podman.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Verifier.
// Tests are skipped if podman is not available.
func setupTestDB(t *testing.T) *Verifier {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("tokenauth_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	v, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating verifier: %v", err)
	}
	t.Cleanup(func() {
		v.Close()
	})

	return v
}

type result struct {
	err  error
	user any
	info any
}

func verify(v *Verifier, username, tok string) result {
	var r result
	v.Verify(context.Background(), username, tok, func(err error, user, info any) {
		r = result{err, user, info}
	})
	return r
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations embedded")
	}
	if migrations[0].version != 1 {
		t.Errorf("first migration version = %d, want 1", migrations[0].version)
	}
	if !strings.Contains(migrations[0].sql, "schema_migrations") {
		t.Error("first migration must create schema_migrations")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migrations out of order at %s", migrations[i].name)
		}
	}
}

func TestPostgres_RegisterAndVerify(t *testing.T) {
	v := setupTestDB(t)
	ctx := context.Background()

	err := v.Register(ctx, "bob", "t123", verifier.Record{
		TenantID: "org-1", ServiceTier: "premium", Scopes: []string{"read", "write"},
	}, time.Time{})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	r := verify(v, "bob", "t123")
	if r.err != nil {
		t.Fatalf("err = %v", r.err)
	}
	id, ok := r.user.(*auth.Identity)
	if !ok {
		t.Fatalf("user = %#v, want *auth.Identity", r.user)
	}
	if id.Subject != "bob" || id.TenantID() != "org-1" || id.ServiceTier != "premium" {
		t.Errorf("identity = %+v", id)
	}
	if len(id.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", id.Scopes)
	}
}

func TestPostgres_Rejections(t *testing.T) {
	v := setupTestDB(t)
	ctx := context.Background()

	if err := v.Register(ctx, "bob", "t123", verifier.Record{}, time.Time{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := v.Register(ctx, "old", "t-old", verifier.Record{}, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	tests := []struct {
		name     string
		username string
		token    string
	}{
		{"wrong token", "bob", "nope"},
		{"unknown user", "mallory", "t123"},
		{"expired", "old", "t-old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := verify(v, tt.username, tt.token)
			if r.err != nil || r.user != nil {
				t.Fatalf("result = %+v, want rejection", r)
			}
			if !errors.Is(r.info.(error), verifier.ErrInvalidCredentials) {
				t.Errorf("info = %v", r.info)
			}
		})
	}
}

func TestPostgres_Revoke(t *testing.T) {
	v := setupTestDB(t)
	ctx := context.Background()

	if err := v.Register(ctx, "bob", "t123", verifier.Record{}, time.Time{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := v.Revoke(ctx, "bob"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	if r := verify(v, "bob", "t123"); r.user != nil {
		t.Errorf("revoked token accepted: %+v", r)
	}
	if err := v.Revoke(ctx, "bob"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("second Revoke() err = %v, want ErrUnknownUser", err)
	}
}

func TestPostgres_DuplicateRegister(t *testing.T) {
	v := setupTestDB(t)
	ctx := context.Background()

	if err := v.Register(ctx, "bob", "t123", verifier.Record{}, time.Time{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := v.Register(ctx, "bob", "t456", verifier.Record{}, time.Time{}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate Register() err = %v, want ErrUserExists", err)
	}
}

func TestPostgres_ClosedPoolErrors(t *testing.T) {
	v := setupTestDB(t)
	v.Close()

	r := verify(v, "bob", "t123")
	if r.err == nil {
		t.Fatalf("result = %+v, want error from closed pool", r)
	}
}

func TestPostgres_MigrateIdempotent(t *testing.T) {
	v := setupTestDB(t)
	if err := v.migrate(context.Background()); err != nil {
		t.Errorf("second migrate() error: %v", err)
	}
}
