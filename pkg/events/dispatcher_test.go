package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTarget records deliveries and can fail a set number of times.
type fakeTarget struct {
	mu        sync.Mutex
	delivered []*Event
	failures  int
	started   chan struct{}
	release   chan struct{}
}

func (f *fakeTarget) Name() string { return "fake" }

func (f *fakeTarget) Deliver(ctx context.Context, evt *Event) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("simulated failure")
	}
	f.delivered = append(f.delivered, evt)
	return nil
}

func (f *fakeTarget) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func TestNew_PopulatesEvent(t *testing.T) {
	evt := New(TypeIntelExtracted, "s1", map[string]any{"k": "v"})

	if evt.Type != TypeIntelExtracted || evt.SessionID != "s1" {
		t.Errorf("Unexpected event %+v", evt)
	}
	if evt.DedupKey == "" {
		t.Error("Dedup key must be set")
	}
	if evt.Timestamp.IsZero() {
		t.Error("Timestamp must be set")
	}
	if other := New(TypeIntelExtracted, "s1", nil); other.DedupKey == evt.DedupKey {
		t.Error("Dedup keys must be unique per event")
	}
}

func TestDispatcher_Delivers(t *testing.T) {
	target := &fakeTarget{}
	d := NewDispatcher(WithTarget(target), WithBaseBackoff(time.Millisecond))

	d.Publish(New(TypeIntelExtracted, "s1", nil))
	d.Publish(New(TypeSessionCompleted, "s1", nil))
	d.Close()

	if got := target.deliveredCount(); got != 2 {
		t.Errorf("Expected 2 deliveries, got %d", got)
	}
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	target := &fakeTarget{failures: 2}
	d := NewDispatcher(
		WithTarget(target),
		WithMaxAttempts(3),
		WithBaseBackoff(time.Millisecond),
	)

	d.Publish(New(TypeScammerAggressive, "s1", nil))
	d.Close()

	if got := target.deliveredCount(); got != 1 {
		t.Errorf("Expected delivery on the third attempt, got %d", got)
	}
}

func TestDispatcher_DropsAfterAttemptCeiling(t *testing.T) {
	target := &fakeTarget{failures: 10}
	d := NewDispatcher(
		WithTarget(target),
		WithMaxAttempts(2),
		WithBaseBackoff(time.Millisecond),
	)

	d.Publish(New(TypeScammerAggressive, "s1", nil))
	d.Close()

	if got := target.deliveredCount(); got != 0 {
		t.Errorf("Expected event dropped after attempt ceiling, got %d deliveries", got)
	}
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	target := &fakeTarget{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	d := NewDispatcher(WithTarget(target), WithQueueSize(1))

	// First event gets picked up and parks inside the target
	if !d.Publish(New(TypeIntelExtracted, "s1", nil)) {
		t.Fatal("First publish should be accepted")
	}
	<-target.started

	// Second event fills the queue; third must be dropped, not block
	if !d.Publish(New(TypeIntelExtracted, "s2", nil)) {
		t.Fatal("Second publish should fill the queue")
	}
	if d.Publish(New(TypeIntelExtracted, "s3", nil)) {
		t.Error("Third publish should report a drop")
	}
	if d.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped event, got %d", d.DroppedCount())
	}

	close(target.release)
	d.Close()

	if got := target.deliveredCount(); got != 2 {
		t.Errorf("Expected the two accepted events delivered, got %d", got)
	}
}
