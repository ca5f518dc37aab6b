// Package auth provides the HTTP host pipeline for pluggable authenticators.
//
// Authentication uses a chain-of-responsibility pattern with voting: each
// authenticator returns Yes (identity found), No (credentials rejected),
// Error (the credential backend failed), or Abstain (can't handle). A
// configurable default decides when all authenticators abstain.
//
// Auth is implemented as HTTP middleware. The middleware injects the
// authenticated identity and its tenant into the request context.
package auth
