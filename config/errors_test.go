package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backoffFactorField = "backoff.factor"

func TestConfigErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name: "complete error with all fields",
			err: &ConfigError{
				Category: "invalid",
				Field:    backoffFactorField,
				Message:  "must be less than 1",
				Action:   "lower it",
				Details:  []string{"detail1", "detail2"},
			},
			expected: "config_invalid: backoff.factor must be less than 1 lower it detail1; detail2",
		},
		{
			name: "error without category",
			err: &ConfigError{
				Field:   backoffFactorField,
				Message: "required",
			},
			expected: "backoff.factor required",
		},
		{
			name: "error without field",
			err: &ConfigError{
				Category: "invalid",
				Message:  "configuration error",
				Action:   "check your config",
			},
			expected: "config_invalid: configuration error check your config",
		},
		{
			name:     "empty error",
			err:      &ConfigError{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConfigErrorEnvVar(t *testing.T) {
	assert.Equal(t, "RESILIENCE_BACKOFF_FACTOR", (&ConfigError{Field: backoffFactorField}).EnvVar())
	assert.Equal(t, "RESILIENCE_RETRY_BUDGET_BURST", (&ConfigError{Field: "retry.budget.burst"}).EnvVar())
	assert.Empty(t, (&ConfigError{}).EnvVar())
}

func TestNewInvalidFieldError(t *testing.T) {
	tests := []struct {
		name       string
		options    []string
		wantAction string
	}{
		{
			name:       "with options",
			options:    []string{"debug", "info"},
			wantAction: "must be one of: debug, info",
		},
		{
			name: "without options",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewInvalidFieldError("log.level", "invalid value", tt.options)

			assert.Equal(t, "invalid", err.Category)
			assert.Equal(t, "log.level", err.Field)
			assert.Equal(t, "invalid value", err.Message)
			assert.Equal(t, tt.wantAction, err.Action)
		})
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError(backoffFactorField, "must be less than 1")

	assert.Equal(t, "invalid", err.Category)
	assert.Equal(t, backoffFactorField, err.Field)
	assert.Equal(t, "check RESILIENCE_BACKOFF_FACTOR or backoff.factor in resilience.yaml", err.Action)

	assert.Empty(t, NewValidationError("", "broken").Action)
}

func TestConfigErrorAsError(t *testing.T) {
	wrapped := fmt.Errorf("invalid configuration: %w", NewValidationError(backoffFactorField, "bad"))

	var cfgErr *ConfigError
	require.True(t, errors.As(wrapped, &cfgErr))
	assert.Equal(t, backoffFactorField, cfgErr.Field)
}
