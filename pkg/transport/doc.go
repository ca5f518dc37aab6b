// Package transport provides the HTTP middleware shared by every
// tokenauth endpoint: panic recovery, request ID assignment
// (X-Request-ID), structured access logging via log/slog, and the JSON
// error envelope.
//
// Middleware is applied in order: the first middleware passed to Chain is
// the outermost wrapper (executes first on the way in, last on the way
// out).
package transport
