package token

import "context"

// DoneFunc reports the verifier's decision. It must be called exactly
// once: err for an unexpected failure, user for accepted credentials, or
// neither (optionally with info) for rejected ones. Calls after the first
// are ignored.
type DoneFunc func(err error, user any, info any)

// Verifier checks a username and token. VerifyFunc and VerifyRequestFunc
// are the two implementations.
type Verifier interface {
	verify(ctx context.Context, req *Request, username, token string, done DoneFunc)
	acceptsRequest() bool
	isNil() bool
}

// VerifyFunc verifies credentials without seeing the request.
type VerifyFunc func(ctx context.Context, username, token string, done DoneFunc)

func (f VerifyFunc) verify(ctx context.Context, _ *Request, username, token string, done DoneFunc) {
	f(ctx, username, token, done)
}

func (f VerifyFunc) acceptsRequest() bool { return false }
func (f VerifyFunc) isNil() bool          { return f == nil }

// VerifyRequestFunc verifies credentials with access to the request. The
// request is nil unless Config.PassRequestToVerifier is set.
type VerifyRequestFunc func(ctx context.Context, req *Request, username, token string, done DoneFunc)

func (f VerifyRequestFunc) verify(ctx context.Context, req *Request, username, token string, done DoneFunc) {
	f(ctx, req, username, token, done)
}

func (f VerifyRequestFunc) acceptsRequest() bool { return true }
func (f VerifyRequestFunc) isNil() bool          { return f == nil }
