package retry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecContext carries per-execution state shared between the executor, the
// policy and the transports it wraps.
type ExecContext struct {
	// ID uniquely identifies the execution
	ID string
	// Started is when the execution context was created
	Started time.Time

	mu         sync.Mutex
	attempts   int
	method     string
	idempotent bool
	written    bool
	attrs      map[string]any
}

// NewExecContext creates an execution context with a fresh ID
func NewExecContext() *ExecContext {
	return &ExecContext{
		ID:      uuid.New().String(),
		Started: time.Now(),
	}
}

// Attempts returns the number of sends started so far
func (ec *ExecContext) Attempts() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.attempts
}

// Elapsed returns the time since the context was created
func (ec *ExecContext) Elapsed() time.Duration {
	return time.Since(ec.Started)
}

// Set stores an attribute
func (ec *ExecContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.attrs == nil {
		ec.attrs = make(map[string]any)
	}
	ec.attrs[key] = value
}

// Get returns an attribute previously stored with Set
func (ec *ExecContext) Get(key string) (any, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	v, ok := ec.attrs[key]
	return v, ok
}

// Method returns the method of the request being executed
func (ec *ExecContext) Method() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.method
}

// Idempotent reports whether the request may be sent more than once
// without changing its effect on the server.
func (ec *ExecContext) Idempotent() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.idempotent
}

// MarkRequestWritten records that the current attempt's request reached the
// connection in full. Transports call it; it is cleared at every attempt.
func (ec *ExecContext) MarkRequestWritten() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.written = true
}

// RequestWritten reports whether the current attempt's request was fully
// written, i.e. the server may have acted on it.
func (ec *ExecContext) RequestWritten() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.written
}

func (ec *ExecContext) describe(method string, idempotent bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.method = method
	ec.idempotent = idempotent
}

func (ec *ExecContext) beginAttempt() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.attempts++
	ec.written = false
	return ec.attempts
}
