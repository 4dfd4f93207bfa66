package request

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// ErrEntityConsumed is returned when a single-use entity is opened twice.
var ErrEntityConsumed = errors.New("request entity already consumed")

// Entity is the underlying body source of a request.
type Entity interface {
	// Open returns a reader positioned at the start of the content.
	Open() (io.ReadCloser, error)
	// Repeatable reports whether Open may be called more than once.
	Repeatable() bool
	// ContentLength returns the length in bytes, or -1 when unknown.
	ContentLength() int64
	// ContentType returns the media type, or "" when unset.
	ContentType() string
}

type bytesEntity struct {
	data        []byte
	contentType string
}

// BytesEntity creates a repeatable entity backed by an in-memory buffer.
func BytesEntity(data []byte, contentType string) Entity {
	return &bytesEntity{data: data, contentType: contentType}
}

func (e *bytesEntity) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (e *bytesEntity) Repeatable() bool     { return true }
func (e *bytesEntity) ContentLength() int64 { return int64(len(e.data)) }
func (e *bytesEntity) ContentType() string  { return e.contentType }

type readerEntity struct {
	mu          sync.Mutex
	r           io.Reader
	opened      bool
	length      int64
	contentType string
}

// ReaderEntity creates a single-use entity streaming from r.
func ReaderEntity(r io.Reader, length int64, contentType string) Entity {
	return &readerEntity{r: r, length: length, contentType: contentType}
}

func (e *readerEntity) Open() (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened {
		return nil, ErrEntityConsumed
	}
	e.opened = true
	if rc, ok := e.r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(e.r), nil
}

func (e *readerEntity) Repeatable() bool     { return false }
func (e *readerEntity) ContentLength() int64 { return e.length }
func (e *readerEntity) ContentType() string  { return e.contentType }

type funcEntity struct {
	open        func() (io.ReadCloser, error)
	length      int64
	contentType string
}

// FuncEntity creates a repeatable entity re-opened through open on every use,
// e.g. a file or an http.Request GetBody func.
func FuncEntity(open func() (io.ReadCloser, error), length int64, contentType string) Entity {
	return &funcEntity{open: open, length: length, contentType: contentType}
}

func (e *funcEntity) Open() (io.ReadCloser, error) {
	return e.open()
}

func (e *funcEntity) Repeatable() bool     { return true }
func (e *funcEntity) ContentLength() int64 { return e.length }
func (e *funcEntity) ContentType() string  { return e.contentType }
