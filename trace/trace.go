// Package trace propagates request identifiers and W3C trace context onto
// outgoing request snapshots.
package trace

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"

	"github.com/gaborage/resilient-http/request"
)

// contextKey is the type for context keys to avoid collisions
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	traceParentKey contextKey = "traceparent"
	traceStateKey  contextKey = "tracestate"

	// HeaderXRequestID is the standard header name for request tracing
	HeaderXRequestID = "X-Request-ID"
	// HeaderTraceParent is the W3C trace context header name
	HeaderTraceParent = "traceparent"
	// HeaderTraceState is the W3C trace context "tracestate" header name
	HeaderTraceState = "tracestate"
)

var traceParentPattern = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns a request ID from context if present
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns an existing request ID from context or generates a new one
func EnsureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.New().String()
}

// WithTraceParent adds a W3C traceparent value to the context
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	return context.WithValue(ctx, traceParentKey, traceParent)
}

// ParentFromContext returns a traceparent from context if present
func ParentFromContext(ctx context.Context) (string, bool) {
	if tp, ok := ctx.Value(traceParentKey).(string); ok && tp != "" {
		return tp, true
	}
	return "", false
}

// WithTraceState adds a W3C tracestate value to the context
func WithTraceState(ctx context.Context, traceState string) context.Context {
	return context.WithValue(ctx, traceStateKey, traceState)
}

// StateFromContext returns a tracestate from context if present
func StateFromContext(ctx context.Context) (string, bool) {
	if ts, ok := ctx.Value(traceStateKey).(string); ok && ts != "" {
		return ts, true
	}
	return "", false
}

// ValidTraceParent reports whether tp is a well-formed, non-zero traceparent.
func ValidTraceParent(tp string) bool {
	if !traceParentPattern.MatchString(tp) {
		return false
	}
	return tp[3:35] != zeroTraceID && tp[36:52] != zeroSpanID
}

const (
	zeroTraceID = "00000000000000000000000000000000"
	zeroSpanID  = "0000000000000000"
)

// GenerateTraceParent creates a minimal W3C traceparent header value.
// Format: version(2)-trace-id(32)-span-id(16)-flags(2), e.g., "00-<32>-<16>-01"
func GenerateTraceParent() string {
	traceID := randomID(16)
	spanID := randomID(8)
	return "00-" + hex.EncodeToString(traceID) + "-" + hex.EncodeToString(spanID) + "-01"
}

func randomID(n int) []byte {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		clear(b)
	}
	for _, v := range b {
		if v != 0 {
			return b
		}
	}
	b[n-1] = 0x01
	return b
}

// Propagate stamps the snapshot headers with a request ID and trace context.
// Values already present on the request win over context values. The
// request ID that ends up on the snapshot is returned.
func Propagate(ctx context.Context, headers *request.Headers) string {
	id := headers.Get(HeaderXRequestID)
	if id == "" {
		id = EnsureRequestID(ctx)
		headers.Set(HeaderXRequestID, id)
	}

	if tp := headers.Get(HeaderTraceParent); !ValidTraceParent(tp) {
		if fromCtx, ok := ParentFromContext(ctx); ok && ValidTraceParent(fromCtx) {
			tp = fromCtx
		} else {
			tp = GenerateTraceParent()
		}
		headers.Set(HeaderTraceParent, tp)
	}

	if headers.Get(HeaderTraceState) == "" {
		if ts, ok := StateFromContext(ctx); ok {
			headers.Set(HeaderTraceState, ts)
		}
	}
	return id
}
