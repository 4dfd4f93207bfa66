package client

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/gaborage/resilient-http/backoff"
	"github.com/gaborage/resilient-http/capacity"
	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/retry"
	"github.com/gaborage/resilient-http/route"
	"github.com/gaborage/resilient-http/trace"
)

var errNotAbsolute = errors.New("request URL must be absolute")

// Client sends requests through the retry executor and feeds every outcome
// back into the per-route AIMD controller.
type Client struct {
	logger    logger.Logger
	executor  *retry.Executor
	gate      *capacity.Gate
	store     *capacity.Store
	backoff   *backoff.Manager
	proxies   []string
	headers   []request.Header
	requestID bool
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*retry.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, clienterr.NewInvalidURIError(url, err)
	}
	return c.Do(req)
}

// Post performs a POST request with a repeatable body
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (*retry.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, clienterr.NewInvalidURIError(url, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

// Do executes req. The caller owns the returned response and must close it
// to free the route's connection slot.
func (c *Client) Do(req *nethttp.Request) (*retry.Response, error) {
	if req == nil {
		return nil, clienterr.NewContractViolation("request")
	}
	ctx := logger.WithAttemptCounter(req.Context())

	snap, err := request.FromHTTP(req)
	if err != nil {
		return nil, err
	}

	rt := route.FromURL(snap.URI(), c.proxies...)
	if rt.IsZero() {
		return nil, clienterr.NewInvalidURIError(snap.URI().Redacted(), errNotAbsolute)
	}

	c.applyHeaders(ctx, snap.Headers())

	resp, err := c.executor.Execute(ctx, rt, snap, retry.NewExecContext())
	c.feedback(ctx, rt, resp, err)

	event := c.logger.Debug().
		Str("route", rt.Key()).
		Str("request", snap.RequestLine()).
		Int64("attempts", logger.GetAttempts(ctx)).
		Int64("retries", logger.GetRetries(ctx))
	if err != nil {
		event.Err(err).Msg("Request failed")
		return nil, err
	}
	event.Int("status", resp.StatusCode).Msg("Request completed")
	return resp, nil
}

func (c *Client) applyHeaders(ctx context.Context, headers *request.Headers) {
	present := make(map[string]bool, headers.Len())
	for _, h := range headers.All() {
		present[strings.ToLower(h.Name)] = true
	}
	for _, h := range c.headers {
		if !present[strings.ToLower(h.Name)] {
			headers.Add(h.Name, h.Value)
		}
	}
	if c.requestID {
		trace.Propagate(ctx, headers)
	}
}

// feedback adjusts the route's cap from the outcome of one execution
func (c *Client) feedback(ctx context.Context, rt route.Route, resp *retry.Response, err error) {
	switch {
	case err != nil:
		if shouldBackOff(ctx, err) {
			c.backoff.BackOff(rt)
		}
	case resp == nil:
	case isOverloaded(resp.StatusCode):
		c.backoff.BackOff(rt)
	default:
		c.backoff.Probe(rt)
	}
}

func shouldBackOff(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var acqErr *capacity.AcquireError
	if errors.As(err, &acqErr) {
		return false
	}
	return clienterr.IsTransport(err) || clienterr.IsErrorType(err, clienterr.NonRepeatableRequest)
}

func isOverloaded(code int) bool {
	return code == nethttp.StatusTooManyRequests || code == nethttp.StatusServiceUnavailable
}

// Stats returns the connection slot usage of every route seen so far
func (c *Client) Stats() []capacity.RouteStats {
	return c.gate.Stats()
}

// Backoff returns the AIMD controller
func (c *Client) Backoff() *backoff.Manager {
	return c.backoff
}

// Capacity returns the per-route cap store
func (c *Client) Capacity() *capacity.Store {
	return c.store
}
