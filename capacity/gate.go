package capacity

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/internal/tracking"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/retry"
	"github.com/gaborage/resilient-http/route"
)

// AcquireError reports a send that could not get a connection slot.
type AcquireError struct {
	Route    route.Route
	Err      error
	InUse    int
	Capacity int
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("capacity acquire for %s: %v (in use: %d, cap: %d)",
		e.Route.Key(), e.Err, e.InUse, e.Capacity)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// RouteStats is a point-in-time view of one route's slots
type RouteStats struct {
	Route   route.Route
	Max     int
	InUse   int
	Waiting int
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithAcquireTimeout bounds how long a send waits for a slot. Zero waits
// until the request context ends.
func WithAcquireTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		g.acquireTimeout = d
	}
}

// WithGateLogger sets the logger for acquire failures
func WithGateLogger(l logger.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// Gate limits concurrent sends per route to the route's cap in a Store,
// and all sends to the store's total limit. A slot is held until the
// response body is closed, or released immediately when the send fails.
type Gate struct {
	next           retry.Transport
	store          *Store
	acquireTimeout time.Duration
	logger         logger.Logger
	total          *Semaphore

	mu     sync.RWMutex
	routes map[route.Route]*Semaphore
}

var _ retry.Transport = (*Gate)(nil)

// NewGate creates a gate in front of next, sized from store
func NewGate(next retry.Transport, store *Store, opts ...GateOption) (*Gate, error) {
	if next == nil {
		return nil, clienterr.NewContractViolation("transport")
	}
	if store == nil {
		return nil, clienterr.NewContractViolation("capacity store")
	}

	g := &Gate{
		next:   next,
		store:  store,
		logger: logger.Nop(),
		routes: make(map[route.Route]*Semaphore),
	}
	if total := store.MaxTotal(); total > 0 {
		g.total = NewSemaphore(total)
	}
	for _, opt := range opts {
		opt(g)
	}

	store.OnChange(g.resize)
	return g, nil
}

// Send implements retry.Transport
func (g *Gate) Send(ctx context.Context, rt route.Route, snap *request.Snapshot, ec *retry.ExecContext) (*retry.Response, error) {
	release, err := g.acquire(ctx, rt)
	if err != nil {
		return nil, err
	}

	resp, err := g.next.Send(ctx, rt, snap, ec)
	if err != nil || resp == nil || resp.Body == nil {
		release()
		return resp, err
	}

	resp.Body = &releasingBody{ReadCloser: resp.Body, release: sync.OnceFunc(release)}
	return resp, nil
}

func (g *Gate) acquire(ctx context.Context, rt route.Route) (func(), error) {
	sem := g.semaphoreFor(rt)

	if g.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.acquireTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := sem.Acquire(ctx); err != nil {
		return nil, g.acquireFailed(ctx, rt, sem, start, err)
	}
	if g.total != nil {
		if err := g.total.Acquire(ctx); err != nil {
			sem.Release()
			return nil, g.acquireFailed(ctx, rt, g.total, start, err)
		}
	}
	tracking.RecordAcquireWait(ctx, rt.Key(), time.Since(start), true)

	return func() {
		if g.total != nil {
			g.total.Release()
		}
		sem.Release()
	}, nil
}

func (g *Gate) acquireFailed(ctx context.Context, rt route.Route, sem *Semaphore, start time.Time, err error) error {
	waited := time.Since(start)
	tracking.RecordAcquireWait(ctx, rt.Key(), waited, false)

	acqErr := &AcquireError{Route: rt, Err: err, InUse: sem.InUse(), Capacity: sem.Capacity()}
	g.logger.Warn().
		Str("route", rt.Key()).
		Dur("waited", waited).
		Int("in_use", acqErr.InUse).
		Int("cap", acqErr.Capacity).
		Msg("Timed out waiting for a connection slot")
	return clienterr.NewTransportError("acquire", acqErr)
}

// semaphoreFor returns rt's semaphore, creating it on first use.
func (g *Gate) semaphoreFor(rt route.Route) *Semaphore {
	g.mu.RLock()
	sem, ok := g.routes[rt]
	g.mu.RUnlock()
	if ok {
		return sem
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if sem, ok := g.routes[rt]; ok {
		return sem
	}
	sem = NewSemaphore(g.store.MaxForRoute(rt))
	g.routes[rt] = sem
	return sem
}

// resize follows store changes. It re-reads the store so that out-of-order
// notifications settle on the latest cap.
func (g *Gate) resize(rt route.Route, _ int) {
	g.mu.RLock()
	sem, ok := g.routes[rt]
	g.mu.RUnlock()
	if ok {
		sem.Resize(g.store.MaxForRoute(rt))
	}
}

// Stats returns the slot usage of every route the gate has seen, sorted by
// route key.
func (g *Gate) Stats() []RouteStats {
	g.mu.RLock()
	stats := make([]RouteStats, 0, len(g.routes))
	for rt, sem := range g.routes {
		stats = append(stats, RouteStats{
			Route:   rt,
			Max:     sem.Capacity(),
			InUse:   sem.InUse(),
			Waiting: sem.Waiting(),
		})
	}
	g.mu.RUnlock()

	slices.SortFunc(stats, func(a, b RouteStats) int {
		return strings.Compare(a.Route.Key(), b.Route.Key())
	})
	return stats
}

// releasingBody frees the connection slot when the caller closes the body
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
