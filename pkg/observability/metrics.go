// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring token authentication.
package observability

import "github.com/prometheus/client_golang/prometheus"

// VerifyBuckets defines histogram buckets for verifier round trips, from
// in-memory lookups (sub-millisecond) to slow database calls.
var VerifyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenauth_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenauth_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// OutcomesTotal counts strategy outcomes: authenticated, rejected,
	// missing_credentials, errored.
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenauth_outcomes_total",
			Help: "Authentication outcomes",
		},
		[]string{"outcome"},
	)

	// CredentialSourceTotal counts where each credential was found
	// (header, body, query).
	CredentialSourceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenauth_credential_source_total",
			Help: "Credential sources",
		},
		[]string{"credential", "source"},
	)

	// VerifyDuration records how long the verifier took to complete.
	VerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tokenauth_verify_duration_seconds",
			Help:    "Verifier latency",
			Buckets: VerifyBuckets,
		},
		[]string{"outcome"},
	)

	// VerifierDuplicateCompletionsTotal counts done callbacks invoked after
	// the first one.
	VerifierDuplicateCompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenauth_verifier_duplicate_completions_total",
			Help: "Verifier completions ignored because the result was already reported",
		},
	)

	// VerifierTimeoutsTotal counts verifications abandoned because the
	// verifier did not complete in time.
	VerifierTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenauth_verifier_timeouts_total",
			Help: "Verifier timeouts",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenauth_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// VerifierCacheTotal counts verification cache lookups by result
	// ("hit" or "miss").
	VerifierCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenauth_verifier_cache_total",
			Help: "Verification cache lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		OutcomesTotal,
		CredentialSourceTotal,
		VerifyDuration,
		VerifierDuplicateCompletionsTotal,
		VerifierTimeoutsTotal,
		RateLimitRejectedTotal,
		VerifierCacheTotal,
	)
}
