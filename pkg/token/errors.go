package token

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMissingVerifier is returned by New when no verifier is supplied.
	ErrMissingVerifier = errors.New("token authentication strategy requires a verify function")

	// ErrVerifierShape is returned by New when PassRequestToVerifier is set
	// but the verifier does not accept a request.
	ErrVerifierShape = errors.New("pass_request_to_verifier requires a VerifyRequestFunc")

	// ErrVerifyTimeout is reported when the verifier does not complete
	// within Config.VerifyTimeout.
	ErrVerifyTimeout = errors.New("verifier did not complete in time")

	// ErrVerifierPanic is reported when the verifier panics.
	ErrVerifierPanic = errors.New("verifier panicked")
)

// DefaultBadRequestMessage is the rejection message used when a credential
// is missing and the caller did not override it.
const DefaultBadRequestMessage = "Missing credentials"

// ConfigError reports a strategy that cannot be constructed.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("token strategy configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BadRequestError is the Info payload of a rejection caused by a missing
// username or token.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}
