package client

import (
	nethttp "net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gaborage/resilient-http/backoff"
	"github.com/gaborage/resilient-http/capacity"
	"github.com/gaborage/resilient-http/config"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/retry"
	"github.com/gaborage/resilient-http/transport"
)

// Builder provides a fluent interface for configuring the client
type Builder struct {
	logger         logger.Logger
	roundTripper   nethttp.RoundTripper
	tracer         trace.TracerProvider
	policy         retry.Policy
	maxAttempts    int
	baseDelay      time.Duration
	budget         *rate.Limiter
	settings       backoff.Settings
	clock          backoff.Clock
	defaultMax     int
	maxTotal       int
	acquireTimeout time.Duration
	proxies        []string
	headers        []request.Header
	requestID      bool
}

// NewBuilder creates a new client builder with default settings
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		logger:      log,
		maxAttempts: retry.DefaultMaxAttempts,
		settings:    backoff.DefaultSettings(),
		defaultMax:  capacity.DefaultMaxPerRoute,
		maxTotal:    capacity.DefaultMaxTotal,
		requestID:   true,
	}
}

// FromConfig applies a loaded configuration. Options set afterwards win.
func (b *Builder) FromConfig(cfg *config.Config) *Builder {
	if cfg == nil {
		return b
	}
	b.maxAttempts = cfg.Retry.MaxAttempts
	b.baseDelay = cfg.Retry.BaseDelay
	if cfg.Retry.Budget.Enabled() {
		b.budget = rate.NewLimiter(rate.Limit(cfg.Retry.Budget.Rate), cfg.Retry.Budget.Burst)
	}
	b.settings = cfg.Backoff.Settings()
	b.defaultMax = cfg.Capacity.DefaultMax
	b.maxTotal = cfg.Capacity.MaxTotal
	b.acquireTimeout = cfg.Capacity.AcquireTimeout
	return b
}

// WithRoundTripper sets the underlying round tripper. Defaults to http.DefaultTransport.
func (b *Builder) WithRoundTripper(rt nethttp.RoundTripper) *Builder {
	b.roundTripper = rt
	return b
}

// WithTracing records an OpenTelemetry client span for every attempt
func (b *Builder) WithTracing(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithPolicy replaces the retry policy. WithMaxAttempts and WithRetryDelay
// only shape the default policy.
func (b *Builder) WithPolicy(p retry.Policy) *Builder {
	b.policy = p
	return b
}

// WithMaxAttempts bounds the number of sends per request, first attempt included
func (b *Builder) WithMaxAttempts(n int) *Builder {
	b.maxAttempts = n
	return b
}

// WithRetryDelay sets the exponential backoff base between attempts
func (b *Builder) WithRetryDelay(d time.Duration) *Builder {
	b.baseDelay = d
	return b
}

// WithRetryBudget limits retries across all requests to r per second with
// the given burst.
func (b *Builder) WithRetryBudget(r rate.Limit, burst int) *Builder {
	b.budget = rate.NewLimiter(r, burst)
	return b
}

// WithBackoff sets the AIMD parameters
func (b *Builder) WithBackoff(s backoff.Settings) *Builder {
	b.settings = s
	return b
}

// WithClock sets the clock used for backoff cooldowns
func (b *Builder) WithClock(c backoff.Clock) *Builder {
	b.clock = c
	return b
}

// WithCapacity sets the initial per-route cap and the cap across all routes.
// A maxTotal of zero leaves the total unbounded.
func (b *Builder) WithCapacity(defaultMax, maxTotal int) *Builder {
	b.defaultMax = defaultMax
	b.maxTotal = maxTotal
	return b
}

// WithAcquireTimeout bounds how long an attempt waits for a connection slot
func (b *Builder) WithAcquireTimeout(d time.Duration) *Builder {
	b.acquireTimeout = d
	return b
}

// WithProxies sets the proxy chain that is part of every route
func (b *Builder) WithProxies(proxies ...string) *Builder {
	b.proxies = append([]string(nil), proxies...)
	return b
}

// WithDefaultHeader adds a header sent with every request that does not
// already carry one with the same name.
func (b *Builder) WithDefaultHeader(name, value string) *Builder {
	b.headers = append(b.headers, request.Header{Name: name, Value: value})
	return b
}

// WithRequestID toggles X-Request-ID and trace context propagation. Enabled by default.
func (b *Builder) WithRequestID(enabled bool) *Builder {
	b.requestID = enabled
	return b
}

// Build assembles the client
func (b *Builder) Build() (*Client, error) {
	store := capacity.NewStore(b.defaultMax, b.maxTotal)

	manager, err := backoff.NewManager(store, b.clock,
		backoff.WithSettings(b.settings),
		backoff.WithLogger(b.logger))
	if err != nil {
		return nil, err
	}

	httpOpts := []transport.Option{transport.WithLogger(b.logger)}
	if b.tracer != nil {
		httpOpts = append(httpOpts, transport.WithTracing(b.tracer))
	}

	gate, err := capacity.NewGate(transport.NewHTTP(b.roundTripper, httpOpts...), store,
		capacity.WithAcquireTimeout(b.acquireTimeout),
		capacity.WithGateLogger(b.logger))
	if err != nil {
		return nil, err
	}

	executor, err := retry.NewExecutor(gate, b.buildPolicy(), b.logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger:    b.logger,
		executor:  executor,
		gate:      gate,
		store:     store,
		backoff:   manager,
		proxies:   b.proxies,
		headers:   append([]request.Header(nil), b.headers...),
		requestID: b.requestID,
	}, nil
}

func (b *Builder) buildPolicy() retry.Policy {
	policy := b.policy
	if policy == nil {
		policy = retry.DefaultPolicy{MaxAttempts: b.maxAttempts, BaseDelay: b.baseDelay}
	}
	if b.budget != nil {
		policy = retry.NewBudgetPolicy(policy, b.budget)
	}
	return policy
}
