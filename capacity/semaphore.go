package capacity

import (
	"container/list"
	"context"
	"sync"
)

// Semaphore is a counting semaphore whose capacity can be changed while
// slots are held. Waiters are served in FIFO order. Shrinking below the
// number of held slots never revokes them; new acquisitions wait until
// enough slots are released.
type Semaphore struct {
	mu      sync.Mutex
	max     int
	current int
	waiters list.List // of chan struct{}
}

// NewSemaphore creates a semaphore with n slots
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{max: n}
}

// Acquire blocks until a slot is available or ctx is done. It returns the
// context error if ctx ends first.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.current < s.max && s.waiters.Len() == 0 {
		s.current++
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// Granted after cancellation; hand the slot back.
			s.current--
			s.notifyWaiters()
		default:
			isFront := s.waiters.Front() == elem
			s.waiters.Remove(elem)
			if isFront {
				s.notifyWaiters()
			}
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// TryAcquire acquires a slot without blocking and reports success
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < s.max && s.waiters.Len() == 0 {
		s.current++
		return true
	}
	return false
}

// Release returns a slot
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == 0 {
		panic("capacity: semaphore released more than acquired")
	}
	s.current--
	s.notifyWaiters()
}

// Resize changes the number of slots
func (s *Semaphore) Resize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.max = n
	s.notifyWaiters()
}

// notifyWaiters grants slots to queued waiters in order. Callers hold mu.
func (s *Semaphore) notifyWaiters() {
	for s.current < s.max {
		front := s.waiters.Front()
		if front == nil {
			return
		}
		s.current++
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
	}
}

// Capacity returns the current number of slots
func (s *Semaphore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}

// InUse returns the number of held slots
func (s *Semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Waiting returns the number of goroutines waiting for a slot
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}
