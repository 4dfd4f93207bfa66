// Package clienterr defines the error taxonomy shared by the request,
// retry and backoff packages.
//
// Every error produced by this module implements ClientError so callers can
// branch on Type() without depending on concrete types. Wrapping kinds keep
// their cause reachable through errors.Is / errors.As.
package clienterr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ClientError represents the categories of errors surfaced by the resilience layer
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of client error
type ErrorType string

const (
	InvalidURI           ErrorType = "invalid_uri"
	Transport            ErrorType = "transport"
	NonRepeatableRequest ErrorType = "non_repeatable_request"
	Configuration        ErrorType = "configuration"
	ContractViolation    ErrorType = "contract_violation"
)

// Sentinel errors usable with errors.Is
var (
	ErrNonRepeatable     = errors.New("cannot retry request with a non-repeatable request entity")
	ErrContractViolation = errors.New("contract violation")
)

// invalidURIError is raised when a request target cannot be parsed as a URI
type invalidURIError struct {
	raw     string
	wrapped error
}

func (e *invalidURIError) Error() string {
	return fmt.Sprintf("invalid request URI: %s: %v", e.raw, e.wrapped)
}

func (e *invalidURIError) Type() ErrorType {
	return InvalidURI
}

func (e *invalidURIError) Unwrap() error {
	return e.wrapped
}

// RawURI returns the offending request target text
func (e *invalidURIError) RawURI() string {
	return e.raw
}

// transportError represents an I/O-kind failure from the underlying transport
type transportError struct {
	op      string
	wrapped error
}

func (e *transportError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("transport error: %s: %v", e.op, e.wrapped)
	}
	return fmt.Sprintf("transport error: %s", e.op)
}

func (e *transportError) Type() ErrorType {
	return Transport
}

func (e *transportError) Unwrap() error {
	return e.wrapped
}

// Op returns the transport operation that failed
func (e *transportError) Op() string {
	return e.op
}

// nonRepeatableError is terminal: a retry was wanted but the body is gone
type nonRepeatableError struct {
	wrapped error
}

func (e *nonRepeatableError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNonRepeatable, e.wrapped)
}

func (e *nonRepeatableError) Type() ErrorType {
	return NonRepeatableRequest
}

func (e *nonRepeatableError) Unwrap() []error {
	return []error{ErrNonRepeatable, e.wrapped}
}

// configurationError represents invalid settings detected at configuration time
type configurationError struct {
	field   string
	message string
}

func (e *configurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.field, e.message)
}

func (e *configurationError) Type() ErrorType {
	return Configuration
}

// Field returns the offending setting name
func (e *configurationError) Field() string {
	return e.field
}

// contractViolation indicates a caller bug such as a missing required argument
type contractViolation struct {
	argument string
}

func (e *contractViolation) Error() string {
	return fmt.Sprintf("%v: %s may not be nil", ErrContractViolation, e.argument)
}

func (e *contractViolation) Type() ErrorType {
	return ContractViolation
}

func (e *contractViolation) Unwrap() error {
	return ErrContractViolation
}

// NewInvalidURIError creates a new invalid URI error preserving the raw target
func NewInvalidURIError(raw string, wrapped error) ClientError {
	return &invalidURIError{raw: raw, wrapped: wrapped}
}

// NewTransportError creates a new transport error
func NewTransportError(op string, wrapped error) ClientError {
	return &transportError{op: op, wrapped: wrapped}
}

// NewNonRepeatableError wraps the I/O failure that could not be retried
func NewNonRepeatableError(wrapped error) ClientError {
	return &nonRepeatableError{wrapped: wrapped}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(field, message string) ClientError {
	return &configurationError{field: field, message: message}
}

// NewContractViolation creates an error for a missing required argument
func NewContractViolation(argument string) ClientError {
	return &contractViolation{argument: argument}
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsTransport reports whether err is an I/O-kind failure that the retry loop
// may intercept. Typed errors of any other kind are never transport errors.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == Transport
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// cancellation surfaces as an I/O failure from net/http
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
