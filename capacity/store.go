// Package capacity holds per-route connection caps and enforces them on
// outgoing sends.
//
// Store is the source of truth for caps and is what the backoff manager
// adjusts. Gate is a retry.Transport decorator that limits concurrent sends
// per route to the route's current cap, resizing its semaphores whenever
// the store changes.
package capacity

import (
	"slices"
	"strings"
	"sync"

	"github.com/gaborage/resilient-http/route"
)

const (
	// DefaultMaxPerRoute is the cap of routes without an explicit entry
	DefaultMaxPerRoute = 2
	// DefaultMaxTotal is the pool-wide connection limit
	DefaultMaxTotal = 20
)

// ChangeFunc is called after a route's effective cap changes
type ChangeFunc func(rt route.Route, n int)

// Store is an in-memory route capacity store safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	defaultMax int
	maxTotal   int
	caps       map[route.Route]int
	listeners  []ChangeFunc
}

// NewStore creates a store. Non-positive defaultMax falls back to
// DefaultMaxPerRoute; maxTotal <= 0 disables the pool-wide limit.
func NewStore(defaultMax, maxTotal int) *Store {
	if defaultMax < 1 {
		defaultMax = DefaultMaxPerRoute
	}
	return &Store{
		defaultMax: defaultMax,
		maxTotal:   max(maxTotal, 0),
		caps:       make(map[route.Route]int),
	}
}

// MaxForRoute returns rt's explicit cap, or the default cap
func (s *Store) MaxForRoute(rt route.Route) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.caps[rt]; ok {
		return c
	}
	return s.defaultMax
}

// SetMaxForRoute sets rt's cap. Values below one are stored as one.
func (s *Store) SetMaxForRoute(rt route.Route, n int) {
	n = max(n, 1)

	s.mu.Lock()
	old, ok := s.caps[rt]
	if !ok {
		old = s.defaultMax
	}
	s.caps[rt] = n
	listeners := s.listeners
	s.mu.Unlock()

	if old != n {
		notify(listeners, rt, n)
	}
}

// ResetRoute drops rt's explicit cap so it follows the default again
func (s *Store) ResetRoute(rt route.Route) {
	s.mu.Lock()
	old, ok := s.caps[rt]
	delete(s.caps, rt)
	current := s.defaultMax
	listeners := s.listeners
	s.mu.Unlock()

	if ok && old != current {
		notify(listeners, rt, current)
	}
}

// DefaultMax returns the cap applied to routes without an explicit entry
func (s *Store) DefaultMax() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultMax
}

// SetDefaultMax changes the default cap. Values below one are stored as one.
// Listeners are not notified for individual routes.
func (s *Store) SetDefaultMax(n int) {
	s.mu.Lock()
	s.defaultMax = max(n, 1)
	s.mu.Unlock()
}

// MaxTotal returns the pool-wide limit, 0 when unlimited
func (s *Store) MaxTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTotal
}

// Routes returns the routes with an explicit cap, sorted by key
func (s *Store) Routes() []route.Route {
	s.mu.RLock()
	routes := make([]route.Route, 0, len(s.caps))
	for rt := range s.caps {
		routes = append(routes, rt)
	}
	s.mu.RUnlock()

	slices.SortFunc(routes, func(a, b route.Route) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return routes
}

// OnChange registers fn to be called after any explicit cap change. fn runs
// on the goroutine that made the change, outside the store lock.
func (s *Store) OnChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(slices.Clip(s.listeners), fn)
	s.mu.Unlock()
}

func notify(listeners []ChangeFunc, rt route.Route, n int) {
	for _, fn := range listeners {
		fn(rt, n)
	}
}
