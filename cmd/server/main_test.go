package main

import (
	"context"
	"testing"

	"github.com/rhuss/tokenauth/pkg/auth"
	"github.com/rhuss/tokenauth/pkg/config"
)

func TestNewBackend_Static(t *testing.T) {
	b, err := newBackend(context.Background(), config.VerifierConfig{
		Type: "static",
		Static: config.StaticConfig{Users: []config.UserConfig{
			{Username: "bob", Token: "t123", TenantID: "org-1", Scopes: []string{"read"}},
		}},
	})
	if err != nil {
		t.Fatalf("newBackend() error: %v", err)
	}
	defer b.Close()

	var user any
	b.verify(context.Background(), "bob", "t123", func(_ error, u, _ any) { user = u })

	id, ok := user.(*auth.Identity)
	if !ok || id.Subject != "bob" || id.TenantID() != "org-1" {
		t.Errorf("user = %#v", user)
	}
	if b.ready != nil {
		t.Error("static backend should not register a readiness check")
	}
}

func TestNewBackend_JWT(t *testing.T) {
	b, err := newBackend(context.Background(), config.VerifierConfig{
		Type: "jwt",
		JWT:  config.JWTConfig{JWKSURL: "http://127.0.0.1:1/jwks"},
	})
	if err != nil {
		t.Fatalf("newBackend() error: %v", err)
	}
	if b.verify == nil {
		t.Error("verify is nil")
	}
}

func TestNewBackend_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.VerifierConfig
	}{
		{"unknown type", config.VerifierConfig{Type: "ldap"}},
		{"static without token", config.VerifierConfig{
			Type:   "static",
			Static: config.StaticConfig{Users: []config.UserConfig{{Username: "bob"}}},
		}},
		{"jwt without url", config.VerifierConfig{Type: "jwt"}},
		{"postgres bad dsn", config.VerifierConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{DSN: "://not a dsn"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newBackend(context.Background(), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
