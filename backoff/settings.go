package backoff

import (
	"fmt"
	"time"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/logger"
)

const (
	// DefaultBackoffFactor halves a route's cap on every applied backoff
	DefaultBackoffFactor = 0.5
	// DefaultCooldown is the minimum time between two adjustments of a route
	DefaultCooldown = 5 * time.Second
	// DefaultPerHostConnectionCap is the absolute ceiling for probing
	DefaultPerHostConnectionCap = 100
)

// Settings holds the tunable parameters of the AIMD controller
type Settings struct {
	BackoffFactor        float64
	Cooldown             time.Duration
	PerHostConnectionCap int
}

// DefaultSettings returns the default AIMD parameters
func DefaultSettings() Settings {
	return Settings{
		BackoffFactor:        DefaultBackoffFactor,
		Cooldown:             DefaultCooldown,
		PerHostConnectionCap: DefaultPerHostConnectionCap,
	}
}

// Validate checks every parameter and returns the first configuration error
func (s Settings) Validate() error {
	if err := validateFactor(s.BackoffFactor); err != nil {
		return err
	}
	if err := validateCooldown(s.Cooldown); err != nil {
		return err
	}
	return validateCap(s.PerHostConnectionCap)
}

func validateFactor(f float64) error {
	if f <= 0 || f >= 1 {
		return clienterr.NewConfigurationError("backoff_factor",
			fmt.Sprintf("must be strictly between 0 and 1, got %v", f))
	}
	return nil
}

func validateCooldown(d time.Duration) error {
	if d <= 0 {
		return clienterr.NewConfigurationError("cooldown",
			fmt.Sprintf("must be positive, got %s", d))
	}
	return nil
}

func validateCap(n int) error {
	if n < 1 {
		return clienterr.NewConfigurationError("per_host_connection_cap",
			fmt.Sprintf("must be at least 1, got %d", n))
	}
	return nil
}

// Option configures a Manager at construction time
type Option func(*options)

type options struct {
	settings Settings
	logger   logger.Logger
}

// WithSettings replaces all AIMD parameters at once
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithBackoffFactor sets the multiplicative decrease factor
func WithBackoffFactor(f float64) Option {
	return func(o *options) {
		o.settings.BackoffFactor = f
	}
}

// WithCooldown sets the per-route adjustment cooldown
func WithCooldown(d time.Duration) Option {
	return func(o *options) {
		o.settings.Cooldown = d
	}
}

// WithPerHostConnectionCap sets the absolute probing ceiling
func WithPerHostConnectionCap(n int) Option {
	return func(o *options) {
		o.settings.PerHostConnectionCap = n
	}
}

// WithLogger sets the logger used for adjustment events
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
