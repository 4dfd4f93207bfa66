package capacity

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/resilient-http/clienterr"
	"github.com/gaborage/resilient-http/request"
	"github.com/gaborage/resilient-http/retry"
	"github.com/gaborage/resilient-http/route"
)

type getSource struct{}

func (getSource) Method() string                           { return nethttp.MethodGet }
func (getSource) RequestURI() string                       { return "http://example.com/" }
func (getSource) Headers() []request.Header                { return nil }
func (getSource) ProtocolVersion() (request.Version, bool) { return request.Version{}, false }
func (getSource) Body() (request.Entity, bool)             { return nil, false }

func newSnap(t *testing.T) *request.Snapshot {
	t.Helper()
	snap, err := request.Wrap(getSource{})
	require.NoError(t, err)
	return snap
}

// blockingTransport tracks how many sends are in flight at once and holds
// each one until release is closed.
type blockingTransport struct {
	release  chan struct{}
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{release: make(chan struct{})}
}

func (b *blockingTransport) Send(ctx context.Context, _ route.Route, _ *request.Snapshot, _ *retry.ExecContext) (*retry.Response, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, errors.New("done")
}

func okTransport() retry.Transport {
	return retry.TransportFunc(func(context.Context, route.Route, *request.Snapshot, *retry.ExecContext) (*retry.Response, error) {
		return &retry.Response{StatusCode: nethttp.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})
}

func TestNewGateRequiresCollaborators(t *testing.T) {
	_, err := NewGate(nil, NewStore(1, 0))
	assert.ErrorIs(t, err, clienterr.ErrContractViolation)

	_, err = NewGate(okTransport(), nil)
	assert.ErrorIs(t, err, clienterr.ErrContractViolation)
}

func TestGateLimitsConcurrencyToRouteCap(t *testing.T) {
	store := NewStore(3, 0)
	next := newBlockingTransport()
	gate, err := NewGate(next, store)
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	for range 10 {
		g.Go(func() error {
			_, _ = gate.Send(ctx, testRoute, newSnap(t), retry.NewExecContext())
			return nil
		})
	}

	require.Eventually(t, func() bool {
		stats := gate.Stats()
		return len(stats) == 1 && stats[0].InUse == 3 && stats[0].Waiting == 7
	}, time.Second, time.Millisecond)

	close(next.release)
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), next.peak.Load())
	assert.Equal(t, []RouteStats{{Route: testRoute, Max: 3}}, gate.Stats())
}

func TestGateHoldsSlotUntilBodyClosed(t *testing.T) {
	store := NewStore(1, 0)
	gate, err := NewGate(okTransport(), store)
	require.NoError(t, err)

	resp, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	assert.Equal(t, 1, gate.Stats()[0].InUse)

	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 0, gate.Stats()[0].InUse)
}

func TestGateReleasesOnError(t *testing.T) {
	store := NewStore(1, 0)
	failing := retry.TransportFunc(func(context.Context, route.Route, *request.Snapshot, *retry.ExecContext) (*retry.Response, error) {
		return nil, clienterr.NewTransportError("send", io.ErrUnexpectedEOF)
	})
	gate, err := NewGate(failing, store)
	require.NoError(t, err)

	for range 3 {
		_, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
		require.Error(t, err)
	}
	assert.Equal(t, 0, gate.Stats()[0].InUse)
}

func TestGateAcquireTimeout(t *testing.T) {
	store := NewStore(1, 0)
	gate, err := NewGate(okTransport(), store, WithAcquireTimeout(20*time.Millisecond))
	require.NoError(t, err)

	held, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	defer held.Close()

	_, err = gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.Error(t, err)

	assert.True(t, clienterr.IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var acqErr *AcquireError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, testRoute, acqErr.Route)
	assert.Equal(t, 1, acqErr.InUse)
	assert.Equal(t, 1, acqErr.Capacity)
	assert.Contains(t, err.Error(), "acquire")
}

func TestGateFollowsStoreChanges(t *testing.T) {
	store := NewStore(1, 0)
	gate, err := NewGate(okTransport(), store, WithAcquireTimeout(time.Second))
	require.NoError(t, err)

	first, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	defer first.Close()

	done := make(chan error, 1)
	go func() {
		resp, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
		if err == nil {
			defer resp.Close()
		}
		done <- err
	}()

	require.Eventually(t, func() bool { return gate.Stats()[0].Waiting == 1 }, time.Second, time.Millisecond)
	store.SetMaxForRoute(testRoute, 2)

	require.NoError(t, <-done)
	assert.Equal(t, 2, gate.Stats()[0].Max)
}

func TestGateRoutesAreIndependent(t *testing.T) {
	store := NewStore(1, 0)
	gate, err := NewGate(okTransport(), store, WithAcquireTimeout(20*time.Millisecond))
	require.NoError(t, err)

	a, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	defer a.Close()

	b, err := gate.Send(context.Background(), otherRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	defer b.Close()

	stats := gate.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, testRoute, stats[0].Route)
	assert.Equal(t, otherRoute, stats[1].Route)
}

func TestGateEnforcesTotalLimit(t *testing.T) {
	store := NewStore(5, 1)
	gate, err := NewGate(okTransport(), store, WithAcquireTimeout(20*time.Millisecond))
	require.NoError(t, err)

	held, err := gate.Send(context.Background(), testRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)

	_, err = gate.Send(context.Background(), otherRoute, newSnap(t), retry.NewExecContext())
	require.Error(t, err)
	for _, s := range gate.Stats() {
		if s.Route == otherRoute {
			assert.Zero(t, s.InUse, "route slot handed back after total limit failure")
		}
	}

	require.NoError(t, held.Close())
	resp, err := gate.Send(context.Background(), otherRoute, newSnap(t), retry.NewExecContext())
	require.NoError(t, err)
	require.NoError(t, resp.Close())
}
