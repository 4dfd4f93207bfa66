// Package route defines the identity of a network destination. A Route is
// the key under which connection caps and backoff state are tracked.
package route

import (
	"net"
	"net/url"
	"strings"
)

const proxySeparator = ">"

// Route identifies a target host reached through an optional proxy chain.
// Routes are comparable and safe to use as map keys.
type Route struct {
	scheme  string
	host    string
	proxies string
}

// New creates a route for scheme://host reached through the given proxies, in
// hop order. The host is normalized to lower case with an explicit port.
func New(scheme, host string, proxies ...string) Route {
	scheme = strings.ToLower(scheme)
	return Route{
		scheme:  scheme,
		host:    normalizeHost(scheme, host),
		proxies: strings.Join(proxies, proxySeparator),
	}
}

// FromURL creates a route for the scheme and host of u.
func FromURL(u *url.URL, proxies ...string) Route {
	if u == nil {
		return Route{}
	}
	return New(u.Scheme, u.Host, proxies...)
}

// Scheme returns the target scheme
func (r Route) Scheme() string { return r.scheme }

// TargetHost returns host:port of the final destination
func (r Route) TargetHost() string { return r.host }

// ProxyChain returns the proxies traversed before the target, in hop order.
func (r Route) ProxyChain() []string {
	if r.proxies == "" {
		return nil
	}
	return strings.Split(r.proxies, proxySeparator)
}

// IsZero reports whether the route was never constructed
func (r Route) IsZero() bool {
	return r.host == ""
}

// Key returns a stable string form suitable for logs and metric attributes.
func (r Route) Key() string {
	key := r.scheme + "://" + r.host
	if r.proxies != "" {
		key += " via " + r.proxies
	}
	return key
}

func (r Route) String() string {
	return r.Key()
}

func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	if host == "" {
		return ""
	}
	if _, port, err := net.SplitHostPort(host); err == nil && port != "" {
		return host
	}
	switch scheme {
	case "https":
		return net.JoinHostPort(strings.Trim(host, "[]"), "443")
	case "http":
		return net.JoinHostPort(strings.Trim(host, "[]"), "80")
	default:
		return host
	}
}
