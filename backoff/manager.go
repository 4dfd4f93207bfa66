// Package backoff implements an AIMD controller for per-route connection
// caps. Success signals (Probe) grow a route's cap by one, failure signals
// (BackOff) shrink it multiplicatively, and a per-route cooldown keeps a
// burst of signals within one round trip from moving the cap more than once.
//
// The caps themselves live in a CapacityStore; the manager only owns the
// time of each route's last applied adjustment.
package backoff

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/internal/tracking"
	"github.com/gaborage/resilient-http/logger"
	"github.com/gaborage/resilient-http/route"
)

// Clock abstracts the time source
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time { return time.Now() }

// CapacityStore holds per-route connection caps. Implementations must be
// safe for concurrent use.
type CapacityStore interface {
	MaxForRoute(rt route.Route) int
	SetMaxForRoute(rt route.Route, n int)
	// MaxTotal returns the pool-wide connection limit, or 0 for none.
	MaxTotal() int
}

// Adjustment describes the outcome of a Probe or BackOff call
type Adjustment struct {
	Route route.Route
	From  int
	To    int
	// Applied is false when the call fell inside the cooldown window
	Applied bool
}

// routeState is the per-route AIMD bookkeeping. mu serializes the
// read-check-write-stamp sequence for one route.
type routeState struct {
	mu       sync.Mutex
	last     time.Time
	adjusted bool
}

// Manager is the AIMD backoff controller. It is safe for concurrent use;
// signals for different routes never block each other.
type Manager struct {
	store  CapacityStore
	clock  Clock
	logger logger.Logger

	settingsMu sync.RWMutex
	settings   Settings

	mu     sync.RWMutex
	routes map[route.Route]*routeState
}

// NewManager creates a manager adjusting caps in store. A nil clock uses
// SystemClock.
func NewManager(store CapacityStore, clock Clock, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, clienterr.NewContractViolation("capacity store")
	}
	if clock == nil {
		clock = SystemClock{}
	}

	o := options{settings: DefaultSettings(), logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}

	return &Manager{
		store:    store,
		clock:    clock,
		logger:   o.logger,
		settings: o.settings,
		routes:   make(map[route.Route]*routeState),
	}, nil
}

// Settings returns the current parameters
func (m *Manager) Settings() Settings {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.settings
}

// SetBackoffFactor changes the decrease factor; f must lie in (0, 1).
func (m *Manager) SetBackoffFactor(f float64) error {
	if err := validateFactor(f); err != nil {
		return err
	}
	m.settingsMu.Lock()
	m.settings.BackoffFactor = f
	m.settingsMu.Unlock()
	return nil
}

// SetCooldown changes the cooldown; d must be positive.
func (m *Manager) SetCooldown(d time.Duration) error {
	if err := validateCooldown(d); err != nil {
		return err
	}
	m.settingsMu.Lock()
	m.settings.Cooldown = d
	m.settingsMu.Unlock()
	return nil
}

// SetPerHostConnectionCap changes the probing ceiling; n must be at least 1.
func (m *Manager) SetPerHostConnectionCap(n int) error {
	if err := validateCap(n); err != nil {
		return err
	}
	m.settingsMu.Lock()
	m.settings.PerHostConnectionCap = n
	m.settingsMu.Unlock()
	return nil
}

// Probe signals a success on rt. Outside the cooldown window the route's
// cap grows by one, up to the per-host cap and the store's total limit.
// A zero route panics.
func (m *Manager) Probe(rt route.Route) Adjustment {
	return m.adjust(rt, tracking.DirectionProbe, func(c int, s Settings) int {
		ceiling := s.PerHostConnectionCap
		if total := m.store.MaxTotal(); total > 0 && total < ceiling {
			ceiling = total
		}
		return min(c+1, ceiling)
	})
}

// BackOff signals a failure on rt. Outside the cooldown window the route's
// cap is multiplied by the backoff factor, never going below one. A zero
// route panics.
func (m *Manager) BackOff(rt route.Route) Adjustment {
	return m.adjust(rt, tracking.DirectionBackOff, func(c int, s Settings) int {
		return max(1, int(math.Floor(float64(c)*s.BackoffFactor)))
	})
}

func (m *Manager) adjust(rt route.Route, direction string, next func(int, Settings) int) Adjustment {
	if rt.IsZero() {
		panic(clienterr.NewContractViolation("route"))
	}
	settings := m.Settings()
	st := m.stateFor(rt)

	st.mu.Lock()
	now := m.clock.Now()
	current := m.store.MaxForRoute(rt)
	adj := Adjustment{Route: rt, From: current, To: current}

	if st.adjusted && now.Sub(st.last) <= settings.Cooldown {
		st.mu.Unlock()
		m.record(direction, adj)
		return adj
	}

	adj.To = next(current, settings)
	adj.Applied = true
	m.store.SetMaxForRoute(rt, adj.To)
	st.last = now
	st.adjusted = true
	st.mu.Unlock()

	m.record(direction, adj)
	return adj
}

func (m *Manager) record(direction string, adj Adjustment) {
	routeKey := adj.Route.Key()
	tracking.RecordAdjustment(context.Background(), routeKey, direction, adj.Applied)

	if !adj.Applied {
		m.logger.Debug().
			Str("route", routeKey).
			Str("direction", direction).
			Int("cap", adj.From).
			Msg("Capacity adjustment suppressed by cooldown")
		return
	}
	m.logger.Debug().
		Str("route", routeKey).
		Str("direction", direction).
		Int("from", adj.From).
		Int("to", adj.To).
		Msg("Route capacity adjusted")
}

// stateFor returns the bookkeeping for rt, creating it on first use.
func (m *Manager) stateFor(rt route.Route) *routeState {
	m.mu.RLock()
	st, ok := m.routes[rt]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if st, ok := m.routes[rt]; ok {
		return st
	}
	st = &routeState{}
	m.routes[rt] = st
	return st
}

// LastAdjustment returns when rt's cap was last changed by the manager
func (m *Manager) LastAdjustment(rt route.Route) (time.Time, bool) {
	m.mu.RLock()
	st, ok := m.routes[rt]
	m.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last, st.adjusted
}
