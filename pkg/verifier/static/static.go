// Package static provides a verifier backed by a fixed set of users,
// typically loaded from the config file. Tokens are hashed with SHA-256
// on load and compared in constant time.
package static

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/tokenauth/pkg/token"
	"github.com/rhuss/tokenauth/pkg/verifier"
)

// User is the configuration format for a static user. Token is the
// plaintext token; TokenHash is a hex SHA-256 digest. One of the two is
// required.
type User struct {
	Username  string
	Token     string
	TokenHash string
	verifier.Record
}

type entry struct {
	hash   verifier.Hash
	record verifier.Record
}

// Verifier validates username/token pairs against a static user table.
type Verifier struct {
	users map[string]entry
}

// New creates a static verifier. Plaintext tokens are hashed immediately
// and not retained.
func New(users []User) (*Verifier, error) {
	v := &Verifier{users: make(map[string]entry, len(users))}
	for i, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := v.users[u.Username]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}

		var h verifier.Hash
		switch {
		case u.TokenHash != "":
			parsed, err := verifier.ParseHash(u.TokenHash)
			if err != nil {
				return nil, fmt.Errorf("users[%d]: token hash: %w", i, err)
			}
			h = parsed
		case u.Token != "":
			h = verifier.HashToken(u.Token)
		default:
			return nil, fmt.Errorf("users[%d]: %w", i, errors.New("token or token hash is required"))
		}

		v.users[u.Username] = entry{hash: h, record: u.Record}
	}
	return v, nil
}

// Len returns the number of configured users.
func (v *Verifier) Len() int {
	return len(v.users)
}

// Verify checks username and tok and completes synchronously.
func (v *Verifier) Verify(_ context.Context, username, tok string, done token.DoneFunc) {
	e, ok := v.users[username]
	if !ok || !e.hash.Matches(tok) {
		done(nil, nil, verifier.ErrInvalidCredentials)
		return
	}
	done(nil, e.record.Identity(username), nil)
}
