package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gaborage/resilient-http/config"
	"github.com/gaborage/resilient-http/logger"
)

const (
	testOTLPHTTPEndpoint = "localhost:4318"
	testOTLPGRPCEndpoint = "localhost:4317"
	testServiceName      = "test-service"
	testSpanName         = "test-span"
	testTracerName       = "test-tracer"
	testMeterName        = "test-meter"
	testCounterName      = "test.requests"
	testShutdownTimeout  = 200 * time.Millisecond
)

func stdoutConfig() config.ObservabilityConfig {
	return config.ObservabilityConfig{
		Enabled:     true,
		Service:     testServiceName,
		Version:     "1.0.0",
		Environment: "test",
		Trace: config.TraceConfig{
			Enabled:    true,
			Endpoint:   EndpointStdout,
			Protocol:   ProtocolHTTP,
			SampleRate: 1.0,
		},
		Metrics: config.MetricsConfig{
			Enabled:  true,
			Endpoint: EndpointStdout,
			Protocol: ProtocolHTTP,
			Interval: time.Minute,
		},
	}
}

// restoreGlobals puts the otel globals back after a test that installs them.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	mp := otel.GetMeterProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(config.ObservabilityConfig{Enabled: false})
	require.NoError(t, err)
	assert.NotNil(t, provider)

	_, ok := provider.(*noopProvider)
	assert.True(t, ok, "expected noopProvider when disabled")

	_, ok = provider.TracerProvider().(noop.TracerProvider)
	assert.True(t, ok)

	assert.NoError(t, provider.ForceFlush(context.Background()))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderMissingServiceName(t *testing.T) {
	cfg := stdoutConfig()
	cfg.Service = ""

	provider, err := NewProvider(cfg)
	assert.Nil(t, provider)
	assert.ErrorIs(t, err, ErrMissingServiceName)
}

func TestNewProviderExportsSpansToStdout(t *testing.T) {
	var traces bytes.Buffer
	cfg := stdoutConfig()
	cfg.Metrics.Enabled = false

	provider, err := NewProvider(cfg, WithoutGlobals(), WithStdoutWriters(&traces, nil))
	require.NoError(t, err)

	_, ok := provider.TracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	_, span := provider.TracerProvider().Tracer(testTracerName).Start(context.Background(), testSpanName)
	span.End()

	require.NoError(t, Shutdown(provider, testShutdownTimeout))
	assert.Contains(t, traces.String(), testSpanName)
	assert.Contains(t, traces.String(), testServiceName)
}

func TestNewProviderSampleRateZeroDropsRootSpans(t *testing.T) {
	var traces bytes.Buffer
	cfg := stdoutConfig()
	cfg.Metrics.Enabled = false
	cfg.Trace.SampleRate = 0

	provider, err := NewProvider(cfg, WithoutGlobals(), WithStdoutWriters(&traces, nil))
	require.NoError(t, err)

	_, span := provider.TracerProvider().Tracer(testTracerName).Start(context.Background(), testSpanName)
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, Shutdown(provider, testShutdownTimeout))
	assert.NotContains(t, traces.String(), testSpanName)
}

func TestNewProviderExportsMetricsToStdout(t *testing.T) {
	var metrics bytes.Buffer
	cfg := stdoutConfig()
	cfg.Trace.Enabled = false

	provider, err := NewProvider(cfg, WithoutGlobals(), WithStdoutWriters(nil, &metrics))
	require.NoError(t, err)

	_, ok := provider.MeterProvider().(*sdkmetric.MeterProvider)
	require.True(t, ok)

	counter, err := provider.MeterProvider().Meter(testMeterName).Int64Counter(testCounterName)
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, Shutdown(provider, testShutdownTimeout))
	assert.Contains(t, metrics.String(), testCounterName)
}

func TestNewProviderDisabledSignalsAreNoop(t *testing.T) {
	cfg := stdoutConfig()
	cfg.Trace.Enabled = false
	cfg.Metrics.Enabled = false

	provider, err := NewProvider(cfg, WithoutGlobals())
	require.NoError(t, err)

	_, ok := provider.TracerProvider().(noop.TracerProvider)
	assert.True(t, ok)
	assert.NotNil(t, provider.MeterProvider())
	assert.NoError(t, provider.ForceFlush(context.Background()))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderInstallsGlobals(t *testing.T) {
	restoreGlobals(t)
	var traces, metrics bytes.Buffer

	provider, err := NewProvider(stdoutConfig(), WithStdoutWriters(&traces, &metrics))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown(provider, testShutdownTimeout) })

	assert.Same(t, provider.TracerProvider(), otel.GetTracerProvider())
	assert.Same(t, provider.MeterProvider(), otel.GetMeterProvider())

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestNewProviderWithoutGlobals(t *testing.T) {
	restoreGlobals(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	before := otel.GetTracerProvider()

	provider, err := NewProvider(stdoutConfig(), WithoutGlobals(),
		WithStdoutWriters(&bytes.Buffer{}, &bytes.Buffer{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown(provider, testShutdownTimeout) })

	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NotContains(t, otel.GetTextMapPropagator().Fields(), "baggage")
}

func TestNewProviderOTLPExporters(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		endpoint string
		insecure bool
	}{
		{name: "http", protocol: ProtocolHTTP, endpoint: testOTLPHTTPEndpoint},
		{name: "http_insecure", protocol: ProtocolHTTP, endpoint: testOTLPHTTPEndpoint, insecure: true},
		{name: "grpc", protocol: ProtocolGRPC, endpoint: testOTLPGRPCEndpoint},
		{name: "grpc_insecure", protocol: ProtocolGRPC, endpoint: testOTLPGRPCEndpoint, insecure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := stdoutConfig()
			cfg.Trace.Endpoint = tt.endpoint
			cfg.Trace.Protocol = tt.protocol
			cfg.Trace.Insecure = tt.insecure
			cfg.Metrics.Endpoint = tt.endpoint
			cfg.Metrics.Protocol = tt.protocol
			cfg.Metrics.Insecure = tt.insecure

			provider, err := NewProvider(cfg, WithoutGlobals())
			require.NoError(t, err)

			_, ok := provider.TracerProvider().(*sdktrace.TracerProvider)
			assert.True(t, ok)
			_, ok = provider.MeterProvider().(*sdkmetric.MeterProvider)
			assert.True(t, ok)

			// No collector is listening; the final metric export may fail.
			_ = Shutdown(provider, testShutdownTimeout)
		})
	}
}

func TestNewProviderInvalidProtocol(t *testing.T) {
	t.Run("trace", func(t *testing.T) {
		cfg := stdoutConfig()
		cfg.Trace.Endpoint = testOTLPHTTPEndpoint
		cfg.Trace.Protocol = "udp"

		provider, err := NewProvider(cfg, WithoutGlobals())
		assert.Nil(t, provider)
		assert.ErrorIs(t, err, ErrInvalidProtocol)
		assert.Contains(t, err.Error(), "trace protocol 'udp'")
	})

	t.Run("metrics", func(t *testing.T) {
		cfg := stdoutConfig()
		cfg.Metrics.Endpoint = testOTLPHTTPEndpoint
		cfg.Metrics.Protocol = "udp"

		provider, err := NewProvider(cfg, WithoutGlobals(), WithStdoutWriters(&bytes.Buffer{}, nil))
		assert.Nil(t, provider)
		assert.ErrorIs(t, err, ErrInvalidProtocol)
		assert.Contains(t, err.Error(), "metrics protocol 'udp'")
	})
}

func TestNewProviderLogsCreation(t *testing.T) {
	var logs bytes.Buffer
	log := logger.NewWithWriter(&logs, "debug", nil)

	provider, err := NewProvider(stdoutConfig(), WithoutGlobals(), WithLogger(log),
		WithStdoutWriters(&bytes.Buffer{}, &bytes.Buffer{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Shutdown(provider, testShutdownTimeout) })

	assert.Contains(t, logs.String(), "Observability provider created")
	assert.Contains(t, logs.String(), testServiceName)
}

type failingProvider struct {
	*noopProvider
}

func (failingProvider) Shutdown(context.Context) error {
	return assert.AnError
}

func TestShutdown(t *testing.T) {
	t.Run("nil_provider", func(t *testing.T) {
		assert.NoError(t, Shutdown(nil, time.Second))
	})

	t.Run("default_timeout", func(t *testing.T) {
		assert.NoError(t, Shutdown(newNoopProvider(), 0))
	})

	t.Run("wraps_error", func(t *testing.T) {
		err := Shutdown(failingProvider{newNoopProvider()}, time.Second)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "observability shutdown failed")
	})
}
