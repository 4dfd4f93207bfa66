package clienterr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      ClientError
		expected ErrorType
		contains string
	}{
		{"invalid uri", NewInvalidURIError("::bad", cause), InvalidURI, "invalid request URI: ::bad"},
		{"transport", NewTransportError("send", cause), Transport, "transport error: send: boom"},
		{"transport without cause", NewTransportError("acquire", nil), Transport, "transport error: acquire"},
		{"non repeatable", NewNonRepeatableError(cause), NonRepeatableRequest, "non-repeatable"},
		{"configuration", NewConfigurationError("backoff.factor", "must be in (0,1)"), Configuration, "backoff.factor"},
		{"contract", NewContractViolation("route"), ContractViolation, "route may not be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Type())
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.True(t, IsErrorType(tt.err, tt.expected))
			assert.True(t, IsErrorType(fmt.Errorf("wrapped: %w", tt.err), tt.expected))
		})
	}
}

func TestInvalidURIPreservesRawText(t *testing.T) {
	err := NewInvalidURIError("http://[::1", errors.New("missing ]"))

	var withRaw interface{ RawURI() string }
	require.True(t, errors.As(err, &withRaw))
	assert.Equal(t, "http://[::1", withRaw.RawURI())
}

func TestNonRepeatableWrapsCause(t *testing.T) {
	cause := NewTransportError("send", io.ErrUnexpectedEOF)
	err := NewNonRepeatableError(cause)

	assert.ErrorIs(t, err, ErrNonRepeatable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, IsErrorType(err, NonRepeatableRequest))
	assert.False(t, IsTransport(err), "terminal error must not be re-intercepted")
}

func TestContractViolationSentinel(t *testing.T) {
	assert.ErrorIs(t, NewContractViolation("snapshot"), ErrContractViolation)
}

func TestIsErrorTypeNil(t *testing.T) {
	assert.False(t, IsErrorType(nil, Transport))
	assert.False(t, IsErrorType(errors.New("plain"), Transport))
}

func TestIsTransport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"typed transport", NewTransportError("send", nil), true},
		{"typed contract", NewContractViolation("route"), false},
		{"typed config", NewConfigurationError("f", "m"), false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, true},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: syscall.ECONNREFUSED}, true},
		{"canceled", context.Canceled, true},
		{"plain", errors.New("validation failed"), false},
		{"reset text without errno", errors.New("read: connection reset by peer"), false},
		{"wrapped reset errno", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransport(tt.err))
		})
	}
}
