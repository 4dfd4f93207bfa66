// Package tracking records OpenTelemetry metrics for the retry executor,
// the backoff manager and the capacity gate.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter name for client resilience instrumentation
	meterName = "resilient-http"

	MetricAttempts           = "http.client.attempts"
	MetricRetries            = "http.client.retries"
	MetricRetrySuppressed    = "http.client.retry.suppressed"
	MetricCapacityAdjustment = "http.client.route.capacity.adjustments"
	MetricAcquireWait        = "http.client.route.acquire.duration"

	AttrRoute     = "http.client.route"
	AttrOutcome   = "outcome"
	AttrReason    = "reason"
	AttrDirection = "direction"
	AttrApplied   = "applied"
)

// Suppression reasons for MetricRetrySuppressed
const (
	ReasonAborted       = "aborted"
	ReasonDeclined      = "declined"
	ReasonNonRepeatable = "non_repeatable"
)

// Adjustment directions for MetricCapacityAdjustment
const (
	DirectionProbe   = "probe"
	DirectionBackOff = "backoff"
)

var acquireBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

var (
	meter         metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	attemptsCounter    metric.Int64Counter
	retriesCounter     metric.Int64Counter
	suppressedCounter  metric.Int64Counter
	adjustmentsCounter metric.Int64Counter
	acquireHistogram   metric.Float64Histogram
)

// logMetricError logs a metric initialization error to stderr.
// Metrics failures never break request execution.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize client metric %s: %v\n", metricName, err)
	}
}

func initMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if meter != nil {
		return
	}

	meter = otel.Meter(meterName)

	var err error
	attemptsCounter, err = meter.Int64Counter(
		MetricAttempts,
		metric.WithDescription("Number of send attempts made by the retry executor"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(MetricAttempts, err)

	retriesCounter, err = meter.Int64Counter(
		MetricRetries,
		metric.WithDescription("Number of failed attempts that were retried"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(MetricRetries, err)

	suppressedCounter, err = meter.Int64Counter(
		MetricRetrySuppressed,
		metric.WithDescription("Number of failures that were not retried"),
		metric.WithUnit("{failure}"),
	)
	logMetricError(MetricRetrySuppressed, err)

	adjustmentsCounter, err = meter.Int64Counter(
		MetricCapacityAdjustment,
		metric.WithDescription("Number of AIMD capacity signals per route"),
		metric.WithUnit("{signal}"),
	)
	logMetricError(MetricCapacityAdjustment, err)

	acquireHistogram, err = meter.Float64Histogram(
		MetricAcquireWait,
		metric.WithDescription("Time spent waiting for a per-route connection slot"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(acquireBuckets...),
	)
	logMetricError(MetricAcquireWait, err)

	metricsInited = true
}

func ensureInitialized() {
	meterOnce.Do(initMeter)
}

// RecordAttempt counts one send attempt with its outcome ("success" or "failure").
func RecordAttempt(ctx context.Context, routeKey string, success bool) {
	ensureInitialized()
	if attemptsCounter == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	attemptsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRoute, routeKey),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordRetry counts a failure that the executor is about to retry.
func RecordRetry(ctx context.Context, routeKey string) {
	ensureInitialized()
	if retriesCounter != nil {
		retriesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRoute, routeKey)))
	}
}

// RecordSuppressed counts a failure that ended execution instead of being retried.
func RecordSuppressed(ctx context.Context, routeKey, reason string) {
	ensureInitialized()
	if suppressedCounter != nil {
		suppressedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrRoute, routeKey),
			attribute.String(AttrReason, reason),
		))
	}
}

// RecordAdjustment counts a probe or backoff signal, whether or not the
// cooldown let it change the cap.
func RecordAdjustment(ctx context.Context, routeKey, direction string, applied bool) {
	ensureInitialized()
	if adjustmentsCounter != nil {
		adjustmentsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrRoute, routeKey),
			attribute.String(AttrDirection, direction),
			attribute.Bool(AttrApplied, applied),
		))
	}
}

// RecordAcquireWait records how long a send waited for a route slot.
func RecordAcquireWait(ctx context.Context, routeKey string, d time.Duration, acquired bool) {
	ensureInitialized()
	if acquireHistogram != nil {
		acquireHistogram.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String(AttrRoute, routeKey),
			attribute.Bool("acquired", acquired),
		))
	}
}

// IsInitialized returns true if the client metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state so a test can install its own
// meter provider. Only call this from tests.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter = nil
	attemptsCounter = nil
	retriesCounter = nil
	suppressedCounter = nil
	adjustmentsCounter = nil
	acquireHistogram = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
