package retry

import (
	"context"
	crand "crypto/rand"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	nethttp "net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaborage/resilient-http/request"
)

const (
	// DefaultMaxAttempts is the number of sends DefaultPolicy allows per execution
	DefaultMaxAttempts = 3

	maxRetryDelay = 30 * time.Second

	headerIdempotencyKey  = "Idempotency-Key"
	headerXIdempotencyKey = "X-Idempotency-Key"
)

// Policy decides whether a failed attempt should be retried. attempt is the
// 1-based number of the attempt that just failed.
type Policy interface {
	ShouldRetry(err error, attempt int, ec *ExecContext) bool
}

// PolicyFunc adapts a function to the Policy interface
type PolicyFunc func(err error, attempt int, ec *ExecContext) bool

// ShouldRetry calls f
func (f PolicyFunc) ShouldRetry(err error, attempt int, ec *ExecContext) bool {
	return f(err, attempt, ec)
}

// Delayer is implemented by policies that want the executor to pause
// before the next attempt.
type Delayer interface {
	RetryDelay(attempt int) time.Duration
}

// Never is a policy that declines every retry
var Never Policy = PolicyFunc(func(error, int, *ExecContext) bool { return false })

// DefaultPolicy retries transient connection failures up to MaxAttempts
// sends. It never retries context cancellation, deadline expiry, DNS
// resolution failures or certificate verification failures, and never
// resends a non-idempotent request once it was fully written.
type DefaultPolicy struct {
	// MaxAttempts bounds the total number of sends. Zero means DefaultMaxAttempts.
	MaxAttempts int
	// BaseDelay is the base for exponential backoff between attempts with
	// full jitter. Zero retries immediately.
	BaseDelay time.Duration
}

// ShouldRetry implements Policy
func (p DefaultPolicy) ShouldRetry(err error, attempt int, ec *ExecContext) bool {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if attempt >= maxAttempts {
		return false
	}
	if ec != nil && ec.RequestWritten() && !ec.Idempotent() {
		return false
	}
	return IsRetryableError(err)
}

// RetryDelay implements Delayer
func (p DefaultPolicy) RetryDelay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	return jitteredBackoff(p.BaseDelay, attempt)
}

// IsIdempotent reports whether a request with method and headers can be
// replayed after the server may have seen it. Like net/http, an
// Idempotency-Key or X-Idempotency-Key header makes any method idempotent.
func IsIdempotent(method string, headers *request.Headers) bool {
	switch method {
	case "", nethttp.MethodGet, nethttp.MethodHead, nethttp.MethodOptions, nethttp.MethodTrace,
		nethttp.MethodPut, nethttp.MethodDelete:
		return true
	}
	if headers == nil {
		return false
	}
	return len(headers.Values(headerIdempotencyKey)) > 0 || len(headers.Values(headerXIdempotencyKey)) > 0
}

// IsRetryableError reports whether err is a transient failure worth
// resending for.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalid x509.CertificateInvalidError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) || errors.As(err, &certInvalid) {
		return false
	}
	return true
}

// jitteredBackoff returns base * 2^(attempt-1), capped, with full jitter.
func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	exp := max(attempt-1, 0)
	// Cap exponent to avoid overflow when computing the multiplier
	if exp > 20 {
		exp = 20
	}
	d := base * time.Duration(1<<exp)
	if d > maxRetryDelay || d <= 0 {
		d = maxRetryDelay
	}
	n, err := crand.Int(crand.Reader, big.NewInt(int64(d)))
	if err != nil {
		// On RNG failure, fall back to the full delay
		return d
	}
	return time.Duration(n.Int64())
}

// BudgetPolicy limits retries across executions with a token bucket. A
// retry goes ahead only if the inner policy accepts it and a token is
// available.
type BudgetPolicy struct {
	inner   Policy
	limiter *rate.Limiter
}

// NewBudgetPolicy wraps inner with a retry budget drawn from limiter
func NewBudgetPolicy(inner Policy, limiter *rate.Limiter) *BudgetPolicy {
	return &BudgetPolicy{inner: inner, limiter: limiter}
}

// ShouldRetry implements Policy
func (p *BudgetPolicy) ShouldRetry(err error, attempt int, ec *ExecContext) bool {
	if !p.inner.ShouldRetry(err, attempt, ec) {
		return false
	}
	return p.limiter.Allow()
}

// RetryDelay forwards to the inner policy when it implements Delayer
func (p *BudgetPolicy) RetryDelay(attempt int) time.Duration {
	if d, ok := p.inner.(Delayer); ok {
		return d.RetryDelay(attempt)
	}
	return 0
}
