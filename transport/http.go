// Package transport provides a retry.Transport that sends request
// snapshots over a net/http RoundTripper.
package transport

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptrace"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/retry"
	"github.com/gaborage/resilient-http/route"
)

const headerHost = "Host"

var errNotAbsolute = errors.New("request URI must be absolute")

// Option configures an HTTP transport
type Option func(*HTTP)

// WithTracing wraps the round tripper with OpenTelemetry client spans
// recorded on tp.
func WithTracing(tp trace.TracerProvider) Option {
	return func(h *HTTP) {
		h.tracer = tp
	}
}

// WithLogger sets the logger for round-trip failures
func WithLogger(l logger.Logger) Option {
	return func(h *HTTP) {
		if l != nil {
			h.logger = l
		}
	}
}

// HTTP sends snapshots with an http.RoundTripper. Each attempt builds a
// fresh *http.Request from the snapshot; the body is streamed from the
// snapshot's body proxy, so a send marks a single-use body consumed only
// once the round tripper starts reading it. Once the whole request has been
// written to the connection the attempt is marked written on the
// execution context.
type HTTP struct {
	base   nethttp.RoundTripper
	tracer trace.TracerProvider
	logger logger.Logger
}

var _ retry.Transport = (*HTTP)(nil)

// NewHTTP creates a transport over rt. A nil rt uses http.DefaultTransport.
func NewHTTP(rt nethttp.RoundTripper, opts ...Option) *HTTP {
	if rt == nil {
		rt = nethttp.DefaultTransport
	}
	h := &HTTP{base: rt, logger: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracer != nil {
		h.base = otelhttp.NewTransport(h.base, otelhttp.WithTracerProvider(h.tracer))
	}
	return h
}

// Send implements retry.Transport
func (h *HTTP) Send(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *retry.ExecContext) (*retry.Response, error) {
	if ec != nil {
		ctx = httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					ec.MarkRequestWritten()
				}
			},
		})
	}

	req, err := NewRequest(ctx, snap)
	if err != nil {
		return nil, err
	}

	resp, err := h.base.RoundTrip(req)
	if err != nil {
		event := h.logger.Debug()
		if ec != nil {
			event = event.Str("execution_id", ec.ID)
		}
		event.
			Str("route", rt.Key()).
			Str("request", snap.RequestLine()).
			Err(err).
			Msg("Round trip failed")
		return nil, clienterr.NewTransportError("send", err)
	}

	return &retry.Response{
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// NewRequest builds an outgoing *http.Request for one attempt of snap.
func NewRequest(ctx context.Context, snap *request.Snapshot) (*nethttp.Request, error) {
	u := snap.URI()
	if u.Scheme == "" || u.Host == "" {
		return nil, clienterr.NewInvalidURIError(u.Redacted(), errNotAbsolute)
	}

	req, err := nethttp.NewRequestWithContext(ctx, snap.Method(), u.String(), nil)
	if err != nil {
		return nil, clienterr.NewInvalidURIError(u.Redacted(), err)
	}

	version := snap.ProtocolVersion()
	req.Proto = version.String()
	req.ProtoMajor = version.Major
	req.ProtoMinor = version.Minor

	req.Header = snap.Headers().ToHTTP()
	if host := req.Header.Get(headerHost); host != "" {
		req.Host = host
		req.Header.Del(headerHost)
	}
	if vhost := snap.VirtualHost(); vhost != "" {
		req.Host = vhost
	}

	proxy, ok := snap.Body()
	if !ok {
		return req, nil
	}

	req.Body = newLazyBody(proxy)
	req.ContentLength = proxy.ContentLength()
	if req.ContentLength == 0 {
		req.ContentLength = -1
	}
	if ct := proxy.ContentType(); ct != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ct)
	}
	if proxy.Entity().Repeatable() {
		req.GetBody = func() (io.ReadCloser, error) {
			return newLazyBody(proxy), nil
		}
	}
	return req, nil
}

// lazyBody opens the body proxy on the round tripper's first read. Opening
// marks the proxy consumed before any byte leaves, so a retry decision
// made after an early Close already sees a single-use body as spent.
type lazyBody struct {
	proxy *request.BodyProxy

	mu      sync.Mutex
	rc      io.ReadCloser
	err     error
	started bool
	done    bool
}

func newLazyBody(proxy *request.BodyProxy) *lazyBody {
	return &lazyBody{proxy: proxy}
}

func (b *lazyBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	if b.done {
		b.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if !b.started {
		b.started = true
		b.rc, b.err = b.proxy.Stream()
	}
	rc, err := b.rc, b.err
	b.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return rc.Read(p)
}

func (b *lazyBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	if b.rc != nil {
		return b.rc.Close()
	}
	return nil
}
