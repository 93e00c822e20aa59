// Package retry decides whether a failed attempt against the payments
// API is worth another try, and how long to wait before it.
//
// The policy is a pure function over one attempt's result plus the
// attempt counter. Each identifier carries its own retry budget;
// nothing here is shared across workers.
package retry

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry decisions.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_retries_total",
		Help: "Total number of retry decisions by reason",
	}, []string{"reason"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resolve_retry_backoff_seconds",
		Help:    "Backoff duration for retries by reason",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"reason"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolve_retry_exhausted_total",
		Help: "Total number of identifiers that exhausted their retry budget by reason",
	}, []string{"reason"})
)

// Reason classifies why an attempt is retryable, used as a metrics label.
type Reason string

const (
	// ReasonRateLimit covers 429 responses.
	ReasonRateLimit Reason = "rate_limit"

	// ReasonServer covers 500/502/503/504 responses.
	ReasonServer Reason = "server"

	// ReasonNetwork covers transport-level failures (timeouts,
	// connection errors) where no HTTP response exists.
	ReasonNetwork Reason = "network"
)

// Attempt describes one completed try against the API.
// Err is non-nil exactly when the request failed before producing an
// HTTP response; Status and Header are then meaningless.
type Attempt struct {
	Status int
	Header http.Header
	Err    error
}

// Retryable reports whether the attempt hit a transient condition.
func (a Attempt) Retryable() bool {
	return a.Err != nil || RetryableStatus(a.Status)
}

// Reason returns the metrics label for a retryable attempt.
func (a Attempt) Reason() Reason {
	switch {
	case a.Err != nil:
		return ReasonNetwork
	case a.Status == http.StatusTooManyRequests:
		return ReasonRateLimit
	default:
		return ReasonServer
	}
}

// RetryableStatus reports whether an HTTP status is transient.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Decision is the outcome of consulting the policy: either retry after
// Delay, or stop and let the worker produce a terminal outcome.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy holds the per-identifier retry parameters.
type Policy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int

	// Backoff is the base of the exponential fallback: the delay before
	// attempt n+1 is Backoff^n seconds, unless the server provided a
	// Retry-After hint.
	Backoff float64
}

// DefaultPolicy returns the tool's default retry parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     1.2,
	}
}

// Decide inspects one attempt and returns whether to try again.
// attempt is 1-based. A server-provided Retry-After hint wins over the
// exponential fallback; transport failures always use the fallback.
func (p Policy) Decide(a Attempt, attempt int) Decision {
	if !a.Retryable() {
		return Decision{}
	}

	reason := a.Reason()
	if attempt >= p.MaxAttempts {
		retryExhaustedTotal.WithLabelValues(string(reason)).Inc()
		return Decision{}
	}

	delay := p.backoffDelay(attempt)
	if a.Err == nil {
		if hint, ok := retryAfter(a.Header); ok {
			delay = hint
		}
	}

	retriesTotal.WithLabelValues(string(reason)).Inc()
	retryBackoffSeconds.WithLabelValues(string(reason)).Observe(delay.Seconds())

	return Decision{Retry: true, Delay: delay}
}

// backoffDelay computes the exponential fallback for a 1-based attempt.
func (p Policy) backoffDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(p.Backoff, float64(attempt)) * float64(time.Second))
}

// retryAfter extracts a Retry-After hint. Only the delay-seconds form
// is honored: the value must be a non-negative integer. The HTTP-date
// form and anything else are ignored.
func retryAfter(h http.Header) (time.Duration, bool) {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
