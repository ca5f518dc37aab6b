package token

import (
	"strings"
	"time"
)

// Config holds the strategy configuration. The zero value selects every
// default.
type Config struct {
	// UsernameHeader is the header holding the username. Default: "x-username".
	UsernameHeader string `yaml:"username_header"`

	// TokenHeader is the header holding the token. Default: "x-token".
	TokenHeader string `yaml:"token_header"`

	// UsernameField is the body field path for the username, in bracket
	// notation such as "profile[username]". Default: "username".
	UsernameField string `yaml:"username_field"`

	// TokenField is the body field path for the token. Default: "token".
	TokenField string `yaml:"token_field"`

	// UsernameQuery is the query parameter path for the username.
	// Default: UsernameField.
	UsernameQuery string `yaml:"username_query"`

	// TokenQuery is the query parameter path for the token.
	// Default: TokenField.
	TokenQuery string `yaml:"token_query"`

	// PassRequestToVerifier hands the request to the verifier as its first
	// argument. Requires a VerifyRequestFunc.
	PassRequestToVerifier bool `yaml:"pass_request_to_verifier"`

	// VerifyTimeout bounds how long Authenticate waits for the verifier to
	// complete. Default: 30s.
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

// Defaults for Config fields.
const (
	DefaultUsernameHeader = "x-username"
	DefaultTokenHeader    = "x-token"
	DefaultUsernameField  = "username"
	DefaultTokenField     = "token"
	DefaultVerifyTimeout  = 30 * time.Second
)

// applyDefaults fills in zero-value fields and lower-cases every name.
func (c *Config) applyDefaults() {
	c.UsernameHeader = lowerOr(c.UsernameHeader, DefaultUsernameHeader)
	c.TokenHeader = lowerOr(c.TokenHeader, DefaultTokenHeader)
	c.UsernameField = lowerOr(c.UsernameField, DefaultUsernameField)
	c.TokenField = lowerOr(c.TokenField, DefaultTokenField)
	c.UsernameQuery = lowerOr(c.UsernameQuery, c.UsernameField)
	c.TokenQuery = lowerOr(c.TokenQuery, c.TokenField)
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = DefaultVerifyTimeout
	}
}

func lowerOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return strings.ToLower(s)
}
