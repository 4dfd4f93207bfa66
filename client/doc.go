// Package client assembles the resilience layer into a ready to use HTTP
// client.
//
// Request flow
//   - Do snapshots the *http.Request, applies default headers and, when
//     enabled, X-Request-ID and traceparent headers.
//   - The snapshot runs through retry.Executor, which sends every attempt
//     through a capacity.Gate and then transport.HTTP.
//   - The Gate holds one connection slot per in-flight attempt, sized by the
//     per-route caps of a capacity.Store.
//
// Retries
//   - Only I/O failures are retried, and only while the policy accepts them.
//   - The default policy allows 3 sends and never retries cancellation,
//     DNS failures or certificate errors.
//   - A request whose single-use body was already sent fails with a
//     NonRepeatableRequest error instead of being resent.
//
// Capacity feedback
//   - After an execution the route is backed off on an I/O failure or a
//     429/503 response, and probed upward on any other response.
//   - Adjustments go through backoff.Manager, so the per-route cooldown
//     applies to both directions.
//   - Caller cancellation and slot acquire timeouts are not treated as
//     signals from the remote host.
package client
