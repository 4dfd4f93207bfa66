package retry

import (
	"context"
	"io"
	nethttp "net/http"

	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/route"
)

// Response is the result of a single successful send. The body stays open
// until the caller closes it.
type Response struct {
	StatusCode int
	Proto      string
	Header     nethttp.Header
	Body       io.ReadCloser
	Stats      Stats
}

// Stats contains execution statistics for a response
type Stats struct {
	// Attempts is the number of sends made for the execution, including the
	// one that produced this response.
	Attempts int
	// ExecutionID identifies the execution in logs.
	ExecutionID string
}

// Close closes the response body if there is one
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Transport sends a request snapshot to a route. It must be safe to call
// more than once with the same snapshot while the snapshot is repeatable.
type Transport interface {
	Send(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) (*Response, error)

// Send calls f
func (f TransportFunc) Send(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) (*Response, error) {
	return f(ctx, rt, snap, ec)
}
