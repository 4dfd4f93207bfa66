package capacity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/resilient-http/internal/testutil"
	"github.com/gaborage/resilient-http/route"
)

var (
	testRoute  = route.New("http", testutil.TestHost)
	otherRoute = route.New("https", testutil.TestOtherHost)
)

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore(0, -5)
	assert.Equal(t, DefaultMaxPerRoute, s.DefaultMax())
	assert.Equal(t, 0, s.MaxTotal())
	assert.Equal(t, DefaultMaxPerRoute, s.MaxForRoute(testRoute))
	assert.Empty(t, s.Routes())
}

func TestStoreSetMaxForRoute(t *testing.T) {
	s := NewStore(4, 20)

	s.SetMaxForRoute(testRoute, 7)
	s.SetMaxForRoute(otherRoute, -3)

	assert.Equal(t, 7, s.MaxForRoute(testRoute))
	assert.Equal(t, 1, s.MaxForRoute(otherRoute))
	assert.Equal(t, []route.Route{testRoute, otherRoute}, s.Routes())
}

func TestStoreDefaultMax(t *testing.T) {
	s := NewStore(4, 0)
	s.SetDefaultMax(9)
	assert.Equal(t, 9, s.MaxForRoute(testRoute))

	s.SetDefaultMax(0)
	assert.Equal(t, 1, s.DefaultMax())
}

func TestStoreResetRoute(t *testing.T) {
	s := NewStore(4, 0)
	s.SetMaxForRoute(testRoute, 10)

	s.ResetRoute(testRoute)

	assert.Equal(t, 4, s.MaxForRoute(testRoute))
	assert.Empty(t, s.Routes())
}

func TestStoreOnChange(t *testing.T) {
	s := NewStore(4, 0)

	var mu sync.Mutex
	var got []int
	s.OnChange(func(rt route.Route, n int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, testRoute, rt)
		got = append(got, n)
	})
	s.OnChange(nil)

	s.SetMaxForRoute(testRoute, 4) // same as default: no change
	s.SetMaxForRoute(testRoute, 2)
	s.SetMaxForRoute(testRoute, 2)
	s.ResetRoute(testRoute)

	assert.Equal(t, []int{2, 4}, got)
}

func TestSemaphoreBasics(t *testing.T) {
	sem := NewSemaphore(2)

	require.NoError(t, sem.Acquire(context.Background()))
	assert.True(t, sem.TryAcquire())
	assert.False(t, sem.TryAcquire())
	assert.Equal(t, 2, sem.InUse())
	assert.Equal(t, 2, sem.Capacity())

	sem.Release()
	assert.Equal(t, 1, sem.InUse())
	assert.True(t, sem.TryAcquire())
}

func TestSemaphoreReleaseWithoutAcquirePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewSemaphore(1).Release()
	})
}

func TestSemaphoreAcquireHonorsContext(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sem.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, sem.Waiting())
	assert.Equal(t, 1, sem.InUse())
}

func TestSemaphoreResizeWakesWaiters(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())

	acquired := make(chan error, 1)
	go func() {
		acquired <- sem.Acquire(context.Background())
	}()

	require.Eventually(t, func() bool { return sem.Waiting() == 1 }, time.Second, time.Millisecond)
	sem.Resize(2)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by resize")
	}
	assert.Equal(t, 2, sem.InUse())
}

func TestSemaphoreShrinkKeepsHeldSlots(t *testing.T) {
	sem := NewSemaphore(3)
	for range 3 {
		require.True(t, sem.TryAcquire())
	}

	sem.Resize(1)
	assert.Equal(t, 3, sem.InUse())
	assert.False(t, sem.TryAcquire())

	sem.Release()
	sem.Release()
	assert.False(t, sem.TryAcquire(), "still at capacity after shrinking")

	sem.Release()
	assert.True(t, sem.TryAcquire())
}

func TestSemaphoreFIFO(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.TryAcquire())

	order := make(chan int, 2)
	for i := range 2 {
		go func() {
			if err := sem.Acquire(context.Background()); err == nil {
				order <- i
			}
		}()
		require.Eventually(t, func() bool { return sem.Waiting() == i+1 }, time.Second, time.Millisecond)
	}

	sem.Release()
	assert.Equal(t, 0, <-order)
	sem.Release()
	assert.Equal(t, 1, <-order)
}
