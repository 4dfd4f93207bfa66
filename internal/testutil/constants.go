// Package testutil provides shared constants and helpers for tests across
// the module. It is never imported by production code.
package testutil

// Test error messages
const (
	// TestError is a generic error message for test error scenarios.
	TestError = "test error"

	// TestConnectionReset is the message of a simulated peer reset.
	TestConnectionReset = "connection reset by peer"
)

// Test hosts
const (
	// TestHost is the target host used by route-keyed tests.
	TestHost = "example.com"

	// TestOtherHost is a second, independent target host.
	TestOtherHost = "other.example.com"

	// TestProxy is a proxy address used for proxied routes.
	TestProxy = "proxy.local:3128"
)
