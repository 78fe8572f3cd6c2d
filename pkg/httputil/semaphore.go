package httputil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds concurrent fire-and-forget work (webhook deliveries,
// archive writes) so a burst of events cannot explode into goroutines.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 64
	}
	return &Semaphore{
		sem: make(chan struct{}, capacity),
	}
}

// TryAcquire attempts to take a slot without blocking. Returns false when
// at capacity; use for work where dropping is acceptable.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Must follow a successful TryAcquire or Acquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// DroppedCount reports how many acquisitions were refused at capacity.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}

// InUse returns the number of slots currently held.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}

// Available returns the number of free slots.
func (s *Semaphore) Available() int {
	return cap(s.sem) - len(s.sem)
}
