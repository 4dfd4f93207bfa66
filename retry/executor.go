// Package retry implements a Transport decorator that resends failed
// requests when a pluggable policy allows it and the request can be
// safely replayed.
package retry

import (
	"context"
	"time"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/internal/tracking"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/route"
)

// Executor decorates a Transport with a retry loop. It is itself a
// Transport so decorators can be stacked.
type Executor struct {
	next   Transport
	policy Policy
	logger logger.Logger
}

var _ Transport = (*Executor)(nil)

// NewExecutor creates an executor that sends through next and consults
// policy after each I/O failure. A nil logger discards log output.
func NewExecutor(next Transport, policy Policy, log logger.Logger) (*Executor, error) {
	if next == nil {
		return nil, clienterr.NewContractViolation("transport")
	}
	if policy == nil {
		return nil, clienterr.NewContractViolation("policy")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Executor{next: next, policy: policy, logger: log}, nil
}

// Send implements Transport
func (e *Executor) Send(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) (*Response, error) {
	return e.Execute(ctx, rt, snap, ec)
}

// Execute sends snap to rt, retrying I/O failures while the policy accepts
// them and the snapshot is repeatable.
//
// The snapshot headers are captured before the first attempt and restored
// before every retry. An aborted original request ends the loop without
// consulting the policy. A retry the policy wants on a consumed,
// non-repeatable body fails with a NonRepeatableRequest error wrapping the
// I/O failure. Every other outcome returns the transport's error unchanged.
func (e *Executor) Execute(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) (*Response, error) {
	if err := checkArguments(ctx, rt, snap, ec); err != nil {
		return nil, err
	}

	routeKey := rt.Key()
	originalHeaders := snap.Headers().All()
	ec.describe(snap.Method(), IsIdempotent(snap.Method(), snap.Headers()))

	for attempt := 1; ; attempt++ {
		ec.beginAttempt()
		logger.IncrementAttempt(ctx)

		e.logger.Debug().
			Str("execution_id", ec.ID).
			Str("route", routeKey).
			Int("attempt", attempt).
			Str("request", snap.RequestLine()).
			Msg("Sending request")

		resp, err := e.next.Send(ctx, rt, snap, ec)
		if err == nil {
			tracking.RecordAttempt(ctx, routeKey, true)
			if resp != nil {
				resp.Stats = Stats{Attempts: attempt, ExecutionID: ec.ID}
			}
			return resp, nil
		}
		tracking.RecordAttempt(ctx, routeKey, false)

		if !clienterr.IsTransport(err) {
			return nil, err
		}

		if snap.IsAborted() {
			e.suppressed(ctx, ec, routeKey, attempt, tracking.ReasonAborted, err).
				Msg("Request aborted, not retrying")
			return nil, err
		}

		if !e.policy.ShouldRetry(err, attempt, ec) {
			e.suppressed(ctx, ec, routeKey, attempt, tracking.ReasonDeclined, err).
				Msg("Retry declined by policy")
			return nil, err
		}

		if !snap.IsRepeatable() {
			e.suppressed(ctx, ec, routeKey, attempt, tracking.ReasonNonRepeatable, err).
				Msg("Request body already sent, cannot retry")
			return nil, clienterr.NewNonRepeatableError(err)
		}

		snap.SetHeaders(originalHeaders)
		tracking.RecordRetry(ctx, routeKey)
		logger.IncrementRetry(ctx)

		e.logger.Info().
			Str("execution_id", ec.ID).
			Str("route", routeKey).
			Int("attempt", attempt).
			Err(err).
			Msg("I/O failure, retrying request")

		if !e.wait(ctx, attempt) {
			e.suppressed(ctx, ec, routeKey, attempt, tracking.ReasonAborted, err).
				Msg("Context done while waiting to retry")
			return nil, err
		}
	}
}

func (e *Executor) suppressed(ctx context.Context, ec *ExecContext, routeKey string, attempt int, reason string, err error) logger.LogEvent {
	tracking.RecordSuppressed(ctx, routeKey, reason)
	return e.logger.Debug().
		Str("execution_id", ec.ID).
		Str("route", routeKey).
		Int("attempt", attempt).
		Str("reason", reason).
		Err(err)
}

// wait pauses before the next attempt when the policy asks for a delay.
// It returns false if ctx ends first.
func (e *Executor) wait(ctx context.Context, attempt int) bool {
	delayer, ok := e.policy.(Delayer)
	if !ok {
		return true
	}
	d := delayer.RetryDelay(attempt)
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func checkArguments(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *ExecContext) error {
	switch {
	case ctx == nil:
		return clienterr.NewContractViolation("context")
	case rt.IsZero():
		return clienterr.NewContractViolation("route")
	case snap == nil:
		return clienterr.NewContractViolation("snapshot")
	case ec == nil:
		return clienterr.NewContractViolation("execution context")
	}
	return nil
}
