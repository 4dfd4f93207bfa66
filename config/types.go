package config

import (
	"time"

	"github.com/gaborage/resilient-http/backoff"
)

// Config holds every tunable of the resilient client. Keys are lowercase and
// dot separated so that RESILIENCE_BACKOFF_COOLDOWN maps to backoff.cooldown.
type Config struct {
	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Retry    RetryConfig    `koanf:"retry" json:"retry" yaml:"retry"`
	Backoff  BackoffConfig  `koanf:"backoff" json:"backoff" yaml:"backoff"`
	Capacity CapacityConfig `koanf:"capacity" json:"capacity" yaml:"capacity"`

	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// RetryConfig holds the default retry policy settings.
type RetryConfig struct {
	// MaxAttempts bounds the total number of sends per execution, first attempt included.
	MaxAttempts int `koanf:"maxattempts" json:"maxattempts" yaml:"maxattempts" validate:"min=1"`
	// BaseDelay is the exponential backoff base between attempts. Zero retries immediately.
	BaseDelay time.Duration `koanf:"basedelay" json:"basedelay" yaml:"basedelay" validate:"gte=0"`
	Budget    BudgetConfig  `koanf:"budget" json:"budget" yaml:"budget"`
}

// BudgetConfig caps retries across all executions with a token bucket.
// A zero Rate disables the budget.
type BudgetConfig struct {
	Rate  float64 `koanf:"rate" json:"rate" yaml:"rate" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=0"`
}

// Enabled reports whether a retry budget is configured
func (b BudgetConfig) Enabled() bool {
	return b.Rate > 0
}

// BackoffConfig holds the AIMD controller parameters.
type BackoffConfig struct {
	Factor   float64       `koanf:"factor" json:"factor" yaml:"factor" validate:"gt=0,lt=1"`
	Cooldown time.Duration `koanf:"cooldown" json:"cooldown" yaml:"cooldown" validate:"gt=0"`
	HostCap  int           `koanf:"hostcap" json:"hostcap" yaml:"hostcap" validate:"min=1"`
}

// Settings converts the section into backoff manager settings
func (b BackoffConfig) Settings() backoff.Settings {
	return backoff.Settings{
		BackoffFactor:        b.Factor,
		Cooldown:             b.Cooldown,
		PerHostConnectionCap: b.HostCap,
	}
}

// CapacityConfig holds the connection slot limits.
type CapacityConfig struct {
	// DefaultMax is the per-route cap for routes the backoff manager has not adjusted.
	DefaultMax int `koanf:"defaultmax" json:"defaultmax" yaml:"defaultmax" validate:"min=1"`
	// MaxTotal bounds slots across all routes. Zero means unbounded.
	MaxTotal int `koanf:"maxtotal" json:"maxtotal" yaml:"maxtotal" validate:"gte=0"`
	// AcquireTimeout bounds the wait for a slot. Zero waits until the request context ends.
	AcquireTimeout time.Duration `koanf:"acquiretimeout" json:"acquiretimeout" yaml:"acquiretimeout" validate:"gte=0"`
}

// ObservabilityConfig controls the optional OpenTelemetry providers that
// export client spans and metrics. When disabled, instruments record into
// whatever global providers the application installed.
type ObservabilityConfig struct {
	Enabled     bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Service     string        `koanf:"service" json:"service" yaml:"service" validate:"required_if=Enabled true"`
	Version     string        `koanf:"version" json:"version" yaml:"version"`
	Environment string        `koanf:"environment" json:"environment" yaml:"environment"`
	Trace       TraceConfig   `koanf:"trace" json:"trace" yaml:"trace"`
	Metrics     MetricsConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// TraceConfig selects the span exporter. Endpoint "stdout" prints spans
// instead of sending OTLP.
type TraceConfig struct {
	Enabled    bool    `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint   string  `koanf:"endpoint" json:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`
	Protocol   string  `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"oneof=http grpc"`
	Insecure   bool    `koanf:"insecure" json:"insecure" yaml:"insecure"`
	SampleRate float64 `koanf:"samplerate" json:"samplerate" yaml:"samplerate" validate:"gte=0,lte=1"`
}

// MetricsConfig selects the metric exporter and its export interval.
type MetricsConfig struct {
	Enabled  bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint string        `koanf:"endpoint" json:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`
	Protocol string        `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"oneof=http grpc"`
	Insecure bool          `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gt=0"`
}
