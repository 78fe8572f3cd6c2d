package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// Dispatcher is the asynchronous consumer between the orchestrator and
// notification targets. Publish never blocks: when the bounded queue is
// full the newest event is dropped with a logged warning. Events are
// best-effort notifications, not the intelligence source of record.
type Dispatcher struct {
	queue   chan *Event
	targets []Target

	maxAttempts int
	baseBackoff time.Duration

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the bounded queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Event, n)
		}
	}
}

// WithMaxAttempts sets the delivery attempt ceiling per target.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the first retry delay; it doubles per attempt.
func WithBaseBackoff(b time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if b > 0 {
			d.baseBackoff = b
		}
	}
}

// WithTarget registers a notification target.
func WithTarget(t Target) DispatcherOption {
	return func(d *Dispatcher) {
		if t != nil {
			d.targets = append(d.targets, t)
		}
	}
}

// NewDispatcher creates and starts a dispatcher. Call Close to drain and
// stop the consumer.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:       make(chan *Event, 256),
		maxAttempts: 3,
		baseBackoff: 500 * time.Millisecond,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Publish enqueues an event without blocking. Returns false if the queue
// is full and the event was dropped.
func (d *Dispatcher) Publish(evt *Event) bool {
	if evt == nil {
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		log.Printf("[WARN] event queue full, dropping %s for session %s", evt.Type, evt.SessionID)
		return false
	}
}

// DroppedCount reports how many events were dropped at the queue.
func (d *Dispatcher) DroppedCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops the consumer after draining queued events.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case evt := <-d.queue:
			d.deliver(evt)
		case <-d.stop:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case evt := <-d.queue:
					d.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

// deliver fans an event out to every target with bounded exponential
// backoff. After the attempt ceiling the event is dropped and logged;
// failures never propagate to the session path.
func (d *Dispatcher) deliver(evt *Event) {
	for _, target := range d.targets {
		backoff := d.baseBackoff
		var err error
		for attempt := 1; attempt <= d.maxAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			err = target.Deliver(ctx, evt)
			cancel()
			if err == nil {
				break
			}
			if attempt < d.maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if err != nil {
			log.Printf("[WARN] dropping %s for session %s after %d attempts to %s: %v",
				evt.Type, evt.SessionID, d.maxAttempts, target.Name(), err)
		}
	}
}
