package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their config key rather than the Go field name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks cfg and returns every violation as a *ConfigError,
// joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		for _, fe := range validationErrors {
			errs = append(errs, fieldError(fe))
		}
	}

	if cfg.Retry.Budget.Enabled() && cfg.Retry.Budget.Burst < 1 {
		errs = append(errs, NewValidationError("retry.budget.burst",
			"must be at least 1 when retry.budget.rate is set"))
	}

	if cfg.Capacity.MaxTotal > 0 && cfg.Capacity.DefaultMax > cfg.Capacity.MaxTotal {
		errs = append(errs, NewValidationError("capacity.defaultmax",
			fmt.Sprintf("must not exceed capacity.maxtotal (%d)", cfg.Capacity.MaxTotal)))
	}

	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) *ConfigError {
	// Namespace is "Config.backoff.factor"; drop the root struct name
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())),
			strings.Fields(fe.Param()))
	case "required", "required_if":
		return NewValidationError(field, "is required")
	case "min", "gte":
		return NewValidationError(field, fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value()))
	case "gt":
		return NewValidationError(field, fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value()))
	case "lt":
		return NewValidationError(field, fmt.Sprintf("must be less than %s, got %v", fe.Param(), fe.Value()))
	case "lte":
		return NewValidationError(field, fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value()))
	default:
		return NewValidationError(field, fmt.Sprintf("failed %s validation", fe.Tag()))
	}
}
