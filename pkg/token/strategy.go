package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rhuss/tokenauth/pkg/debug"
	"github.com/rhuss/tokenauth/pkg/fieldpath"
	"github.com/rhuss/tokenauth/pkg/observability"
)

// Name is the strategy name reported by Strategy.Name.
const Name = "token"

// Credential sources, in lookup order.
const (
	sourceHeader = "header"
	sourceBody   = "body"
	sourceQuery  = "query"
)

// Strategy authenticates requests carrying a username and a token.
// It is immutable after New and safe for concurrent use.
type Strategy struct {
	config   Config
	verifier Verifier

	usernameField fieldpath.Path
	tokenField    fieldpath.Path
	usernameQuery fieldpath.Path
	tokenQuery    fieldpath.Path
}

// New creates a strategy. It fails with a *ConfigError when v is nil, or
// when cfg.PassRequestToVerifier is set and v is not a VerifyRequestFunc.
func New(cfg Config, v Verifier) (*Strategy, error) {
	if v == nil || v.isNil() {
		return nil, &ConfigError{Err: ErrMissingVerifier}
	}

	cfg.applyDefaults()

	if cfg.PassRequestToVerifier && !v.acceptsRequest() {
		return nil, &ConfigError{Err: ErrVerifierShape}
	}

	return &Strategy{
		config:        cfg,
		verifier:      v,
		usernameField: fieldpath.Parse(cfg.UsernameField),
		tokenField:    fieldpath.Parse(cfg.TokenField),
		usernameQuery: fieldpath.Parse(cfg.UsernameQuery),
		tokenQuery:    fieldpath.Parse(cfg.TokenQuery),
	}, nil
}

// NewDefault creates a strategy with the default configuration.
func NewDefault(v Verifier) (*Strategy, error) {
	return New(Config{}, v)
}

// Name returns "token".
func (s *Strategy) Name() string { return Name }

// Config returns the effective configuration, defaults applied.
func (s *Strategy) Config() Config { return s.config }

// CallOption customizes a single Authenticate call.
type CallOption func(*callOptions)

type callOptions struct {
	badRequestMessage string
}

// WithBadRequestMessage overrides the "Missing credentials" message.
func WithBadRequestMessage(msg string) CallOption {
	return func(o *callOptions) {
		o.badRequestMessage = msg
	}
}

// Authenticate resolves the credentials in req and, when both are present,
// runs the verifier. It always returns exactly one Outcome and never panics
// on malformed request data.
func (s *Strategy) Authenticate(ctx context.Context, req *Request, opts ...CallOption) Outcome {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	username, usernameSrc := s.credential(req, s.config.UsernameHeader, s.usernameField, s.usernameQuery)
	token, tokenSrc := s.credential(req, s.config.TokenHeader, s.tokenField, s.tokenQuery)

	if username == "" || token == "" {
		msg := co.badRequestMessage
		if msg == "" {
			msg = DefaultBadRequestMessage
		}
		debug.Log("strategy", "missing credentials",
			"username_found", username != "",
			"token_found", token != "",
		)
		observability.OutcomesTotal.WithLabelValues("missing_credentials").Inc()
		return Outcome{Status: Rejected, Info: &BadRequestError{Message: msg}}
	}

	observability.CredentialSourceTotal.WithLabelValues("username", usernameSrc).Inc()
	observability.CredentialSourceTotal.WithLabelValues("token", tokenSrc).Inc()
	debug.Log("strategy", "credentials resolved",
		"username", username,
		"username_source", usernameSrc,
		"token", debug.Mask(token),
		"token_source", tokenSrc,
	)

	out := s.verify(ctx, req, username, token)
	observability.OutcomesTotal.WithLabelValues(out.Status.String()).Inc()
	return out
}

// credential returns the first non-empty value from header, body, and
// query, along with the source it came from.
func (s *Strategy) credential(req *Request, header string, field, query fieldpath.Path) (string, string) {
	if req == nil {
		return "", ""
	}
	if v := req.header(header); v != "" {
		return v, sourceHeader
	}
	if v, ok := field.Lookup(req.Body); ok {
		if text := fieldpath.Text(v); text != "" {
			return text, sourceBody
		}
	}
	if v, ok := query.Lookup(req.Query); ok {
		if text := fieldpath.Text(v); text != "" {
			return text, sourceQuery
		}
	}
	return "", ""
}

// verify runs the verifier in its own goroutine and waits for its first
// completion, the timeout, or cancellation of ctx.
func (s *Strategy) verify(ctx context.Context, req *Request, username, token string) Outcome {
	vctx, cancel := context.WithTimeout(ctx, s.config.VerifyTimeout)
	defer cancel()

	// Buffered so a completion after we stop waiting never blocks the verifier.
	results := make(chan Outcome, 1)
	var completed atomic.Bool

	done := func(err error, user any, info any) {
		if !completed.CompareAndSwap(false, true) {
			observability.VerifierDuplicateCompletionsTotal.Inc()
			slog.Warn("verifier completed more than once, ignoring",
				"strategy", Name,
				"username", username,
			)
			return
		}
		results <- resolve(err, user, info)
	}

	var verifyReq *Request
	if s.config.PassRequestToVerifier {
		verifyReq = req
	}

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if completed.Load() {
					slog.Error("verifier panicked after completing", "strategy", Name, "panic", r)
					return
				}
				done(fmt.Errorf("%w: %v", ErrVerifierPanic, r), nil, nil)
			}
		}()
		s.verifier.verify(vctx, verifyReq, username, token, done)
	}()

	select {
	case out := <-results:
		s.observe(out, username, start)
		return out
	case <-vctx.Done():
		// A completion racing the deadline still wins.
		select {
		case out := <-results:
			s.observe(out, username, start)
			return out
		default:
		}

		err := ctx.Err()
		if err == nil {
			err = ErrVerifyTimeout
			observability.VerifierTimeoutsTotal.Inc()
		}
		slog.Warn("verifier did not complete",
			"strategy", Name,
			"username", username,
			"timeout", s.config.VerifyTimeout,
			"error", err,
		)
		out := Outcome{Status: Errored, Err: err}
		s.observe(out, username, start)
		return out
	}
}

func (s *Strategy) observe(out Outcome, username string, start time.Time) {
	elapsed := time.Since(start)
	observability.VerifyDuration.WithLabelValues(out.Status.String()).Observe(elapsed.Seconds())

	switch out.Status {
	case Errored:
		slog.Warn("verifier error", "strategy", Name, "username", username, "error", out.Err)
	default:
		debug.Log("verifier", "verifier completed",
			"username", username,
			"outcome", out.Status.String(),
			"duration", elapsed,
		)
	}
}
