// Package request provides Snapshot, a replayable view of an outbound HTTP
// request.
//
// A Snapshot freezes the method, target URI and protocol version of the
// request it wraps and keeps a private copy of its headers, so the retry
// layer can reset headers between attempts without touching the caller's
// request. When the request carries a body, the snapshot wraps it in a
// BodyProxy that records whether the content has been sent; once a
// single-use body is sent the snapshot is permanently non-repeatable.
//
// Snapshots are not safe for concurrent use. One attempt owns a snapshot at a
// time.
package request

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gaborage/resilient-http/clienterr"
)

// Source is any request-like object that can be snapshotted.
type Source interface {
	Method() string
	// RequestURI returns the request target as written on the request line.
	RequestURI() string
	// ProtocolVersion returns the explicit version, ok=false when unset.
	ProtocolVersion() (Version, bool)
	Headers() []Header
	// Body returns the request entity, ok=false for requests without one.
	Body() (Entity, bool)
}

// VirtualHoster is implemented by sources that address a host other than
// the one in their target URI.
type VirtualHoster interface {
	VirtualHost() string
}

// Aborter is implemented by sources that can be cancelled by their owner.
type Aborter interface {
	IsAborted() bool
}

// Version is an HTTP protocol version
type Version struct {
	Major int
	Minor int
}

var (
	HTTP10 = Version{Major: 1, Minor: 0}
	HTTP11 = Version{Major: 1, Minor: 1}
	HTTP20 = Version{Major: 2, Minor: 0}
)

func (v Version) String() string {
	if v.Major >= 2 && v.Minor == 0 {
		return fmt.Sprintf("HTTP/%d", v.Major)
	}
	return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor)
}

var (
	defaultVersionMu sync.RWMutex
	defaultVersion   = HTTP11
)

// DefaultVersion returns the process-wide protocol version used by
// snapshots without an explicit version.
func DefaultVersion() Version {
	defaultVersionMu.RLock()
	defer defaultVersionMu.RUnlock()
	return defaultVersion
}

// SetDefaultVersion changes the process-wide default protocol version.
func SetDefaultVersion(v Version) {
	defaultVersionMu.Lock()
	defer defaultVersionMu.Unlock()
	defaultVersion = v
}

// Snapshot is a replayable wrapper around a Source.
type Snapshot struct {
	original Source
	method   string
	uri      *url.URL
	version  *Version
	vhost    string
	headers  *Headers
	body     *BodyProxy
}

// Wrap snapshots src. It fails with an InvalidURI error when the request
// target cannot be parsed.
func Wrap(src Source) (*Snapshot, error) {
	if src == nil {
		return nil, clienterr.NewContractViolation("request")
	}

	raw := src.RequestURI()
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, clienterr.NewInvalidURIError(raw, err)
	}

	s := &Snapshot{
		original: src,
		method:   src.Method(),
		uri:      uri,
		headers:  NewHeaders(src.Headers()...),
	}
	if v, ok := src.ProtocolVersion(); ok {
		s.version = &v
	}
	if vh, ok := src.(VirtualHoster); ok {
		s.vhost = vh.VirtualHost()
	}
	if entity, ok := src.Body(); ok && entity != nil {
		s.body = newBodyProxy(entity)
	}
	return s, nil
}

// Method returns the request method
func (s *Snapshot) Method() string {
	return s.method
}

// URI returns a copy of the target URI
func (s *Snapshot) URI() *url.URL {
	u := *s.uri
	if s.uri.User != nil {
		user := *s.uri.User
		u.User = &user
	}
	return &u
}

// ProtocolVersion returns the explicit version or the process default.
func (s *Snapshot) ProtocolVersion() Version {
	if s.version != nil {
		return *s.version
	}
	return DefaultVersion()
}

// SetProtocolVersion overrides the protocol version for this snapshot only
func (s *Snapshot) SetProtocolVersion(v Version) {
	s.version = &v
}

// VirtualHost returns the host sent in place of the URI host, or "" to use
// the URI host.
func (s *Snapshot) VirtualHost() string {
	return s.vhost
}

// SetVirtualHost overrides the host the request is addressed to without
// changing the connection target. "" restores the URI host.
func (s *Snapshot) SetVirtualHost(host string) {
	s.vhost = host
}

// Headers returns the mutable header set of the snapshot
func (s *Snapshot) Headers() *Headers {
	return s.headers
}

// SetHeaders replaces the snapshot headers with a copy of hs
func (s *Snapshot) SetHeaders(hs []Header) {
	s.headers.Replace(hs)
}

// Body returns the body proxy, ok=false when the request has no body
func (s *Snapshot) Body() (*BodyProxy, bool) {
	return s.body, s.body != nil
}

// Original returns the wrapped source
func (s *Snapshot) Original() Source {
	return s.original
}

// IsAborted reports whether the original request was cancelled by its owner.
func (s *Snapshot) IsAborted() bool {
	a, ok := s.original.(Aborter)
	return ok && a.IsAborted()
}

// IsRepeatable reports whether the snapshot can be sent again: true with no
// body, with a repeatable body, or with a body that has not been consumed.
func (s *Snapshot) IsRepeatable() bool {
	return s.body == nil || s.body.IsRepeatable()
}

// ExpectContinue reports whether the request asks for a 100-continue handshake
func (s *Snapshot) ExpectContinue() bool {
	return s.body != nil && strings.EqualFold(s.headers.Get("Expect"), "100-continue")
}

// RequestLine renders "METHOD target VERSION". An empty target renders as "/".
// A password in the target's user info is masked.
func (s *Snapshot) RequestLine() string {
	target := s.uri.Redacted()
	if target == "" {
		target = "/"
	}
	return s.method + " " + target + " " + s.ProtocolVersion().String()
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("%s %s %v", s.method, s.uri.Redacted(), s.headers.All())
}
