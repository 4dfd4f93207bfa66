package request

import (
	"io"
	"sync/atomic"
)

// BodyState tracks how far a request body has been used.
type BodyState int

const (
	// BodyUnread means nothing has touched the content yet
	BodyUnread BodyState = iota
	// BodyRead means the content was inspected but not sent
	BodyRead
	// BodyConsumed means the content was written out or finalized
	BodyConsumed
)

// String returns the string representation of the state
func (s BodyState) String() string {
	switch s {
	case BodyUnread:
		return "unread"
	case BodyRead:
		return "read"
	case BodyConsumed:
		return "consumed"
	default:
		return "unknown"
	}
}

// BodyProxy wraps an Entity and records whether it has been consumed.
//
// Content only moves the proxy to BodyRead: clients may look at a body
// without sending it. WriteTo, Stream and Finalize move it to BodyConsumed. The state
// is atomic because transports usually stream the body from their own goroutine.
type BodyProxy struct {
	entity Entity
	state  atomic.Int32
}

func newBodyProxy(entity Entity) *BodyProxy {
	return &BodyProxy{entity: entity}
}

// Entity returns the wrapped entity
func (b *BodyProxy) Entity() Entity {
	return b.entity
}

// State returns the current body state
func (b *BodyProxy) State() BodyState {
	return BodyState(b.state.Load())
}

// IsRepeatable reports whether the body can still be sent.
func (b *BodyProxy) IsRepeatable() bool {
	return b.entity.Repeatable() || b.State() != BodyConsumed
}

// ContentLength returns the entity length, or -1 when unknown
func (b *BodyProxy) ContentLength() int64 {
	return b.entity.ContentLength()
}

// ContentType returns the entity media type
func (b *BodyProxy) ContentType() string {
	return b.entity.ContentType()
}

// Content opens the entity for inspection without marking it consumed. For a
// single-use entity the returned reader is the only one it will ever hand out.
func (b *BodyProxy) Content() (io.ReadCloser, error) {
	rc, err := b.entity.Open()
	if err != nil {
		return nil, err
	}
	b.state.CompareAndSwap(int32(BodyUnread), int32(BodyRead))
	return rc, nil
}

// WriteTo streams the whole entity into w. The body counts as consumed as
// soon as the write starts, even if it fails part way.
func (b *BodyProxy) WriteTo(w io.Writer) (int64, error) {
	rc, err := b.entity.Open()
	b.state.Store(int32(BodyConsumed))
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}

// Stream opens the entity for sending and marks the body consumed before
// returning, so IsRepeatable reflects the send before any byte is read.
func (b *BodyProxy) Stream() (io.ReadCloser, error) {
	rc, err := b.entity.Open()
	b.state.Store(int32(BodyConsumed))
	return rc, err
}

// Finalize marks the body consumed without writing it, e.g. when the
// transport discarded or closed it.
func (b *BodyProxy) Finalize() {
	b.state.Store(int32(BodyConsumed))
}
