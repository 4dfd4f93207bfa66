package request

import (
	"context"
	"errors"
	nethttp "net/http"

	"github.com/gaborage/resilient-http/clienterr"
)

// httpSource adapts a *http.Request to Source and Aborter.
type httpSource struct {
	req *nethttp.Request
}

// FromHTTP snapshots a net/http request. A body with GetBody set is treated
// as repeatable; any other body is single use. A req.Host that differs from
// the URL host becomes the snapshot's virtual host. The request counts as
// aborted once its context is cancelled.
func FromHTTP(req *nethttp.Request) (*Snapshot, error) {
	if req == nil {
		return nil, clienterr.NewContractViolation("request")
	}
	return Wrap(&httpSource{req: req})
}

func (s *httpSource) Method() string {
	if s.req.Method == "" {
		return nethttp.MethodGet
	}
	return s.req.Method
}

func (s *httpSource) RequestURI() string {
	if s.req.URL != nil {
		return s.req.URL.String()
	}
	return s.req.RequestURI
}

func (s *httpSource) ProtocolVersion() (Version, bool) {
	if s.req.ProtoMajor == 0 {
		return Version{}, false
	}
	return Version{Major: s.req.ProtoMajor, Minor: s.req.ProtoMinor}, true
}

// VirtualHost returns req.Host when it differs from the URL host.
func (s *httpSource) VirtualHost() string {
	if s.req.URL != nil && s.req.Host == s.req.URL.Host {
		return ""
	}
	return s.req.Host
}

func (s *httpSource) Headers() []Header {
	return headersFromHTTP(s.req.Header)
}

func (s *httpSource) Body() (Entity, bool) {
	if s.req.Body == nil || s.req.Body == nethttp.NoBody {
		return nil, false
	}
	contentType := s.req.Header.Get("Content-Type")
	if s.req.GetBody != nil {
		return FuncEntity(s.req.GetBody, s.req.ContentLength, contentType), true
	}
	length := s.req.ContentLength
	if length == 0 {
		length = -1
	}
	return ReaderEntity(s.req.Body, length, contentType), true
}

func (s *httpSource) IsAborted() bool {
	return errors.Is(s.req.Context().Err(), context.Canceled)
}

// HTTPRequest returns the wrapped *http.Request when the snapshot was built by
// FromHTTP.
func HTTPRequest(s *Snapshot) (*nethttp.Request, bool) {
	src, ok := s.original.(*httpSource)
	if !ok {
		return nil, false
	}
	return src.req, true
}
