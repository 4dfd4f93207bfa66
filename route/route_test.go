package route

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNormalizesHost(t *testing.T) {
	tests := []struct {
		name     string
		scheme   string
		host     string
		expected string
	}{
		{"http default port", "http", "Example.com", "example.com:80"},
		{"https default port", "HTTPS", "example.com", "example.com:443"},
		{"explicit port", "http", "localhost:8080", "localhost:8080"},
		{"ipv6", "https", "[::1]", "[::1]:443"},
		{"unknown scheme", "ftp", "files.example.com", "files.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.scheme, tt.host)
			assert.Equal(t, tt.expected, r.TargetHost())
		})
	}
}

func TestRouteEquality(t *testing.T) {
	a := New("http", "localhost")
	b := New("http", "localhost:80")
	c := New("http", "localhost", "proxy:3128")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	m := map[Route]int{a: 1}
	m[b] = 2
	assert.Len(t, m, 1)
}

func TestProxyChain(t *testing.T) {
	r := New("https", "api.example.com", "p1:3128", "p2:3128")

	assert.Equal(t, []string{"p1:3128", "p2:3128"}, r.ProxyChain())
	assert.Equal(t, "https://api.example.com:443 via p1:3128>p2:3128", r.Key())
	assert.Nil(t, New("http", "x").ProxyChain())
}

func TestFromURL(t *testing.T) {
	u, err := url.Parse("https://api.example.com/v1/items?q=1")
	require.NoError(t, err)

	r := FromURL(u)
	assert.Equal(t, "https", r.Scheme())
	assert.Equal(t, "api.example.com:443", r.TargetHost())
	assert.True(t, FromURL(nil).IsZero())
	assert.False(t, r.IsZero())
	assert.Equal(t, r.Key(), r.String())
}
