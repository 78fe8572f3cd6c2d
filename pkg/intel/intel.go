// Package intel maintains the authoritative aggregated-intelligence view:
// per-session and global artifact sets with append-only merge semantics.
//
// All writers go through Merge, which makes the global view race-safe under
// concurrent sessions. The store starts empty and only ever grows; retention
// is an external concern.
package intel

import (
	"context"
	"sync"

	"github.com/TryMightyAI/mirage/pkg/extract"
)

// View is an aggregated-by-type snapshot of artifact values.
type View map[extract.ArtifactType][]string

// Aggregator is the intelligence aggregation contract. The in-memory
// implementation is the default; a Redis-backed one serves multi-node
// deployments.
type Aggregator interface {
	// Merge appends artifacts to the global and per-session sets.
	// Duplicate (type, value) pairs are suppressed; merging is idempotent.
	Merge(ctx context.Context, sessionID string, artifacts []extract.Artifact) error

	// SessionView returns the per-session aggregated view.
	SessionView(ctx context.Context, sessionID string) (View, error)

	// GlobalView returns the cross-session aggregated view.
	GlobalView(ctx context.Context) (View, error)
}

// InMemoryAggregator holds the aggregated view in process memory.
type InMemoryAggregator struct {
	mu        sync.RWMutex
	global    map[extract.ArtifactType]map[string]struct{}
	bySession map[string]map[extract.ArtifactType]map[string]struct{}
}

// NewInMemoryAggregator creates an empty aggregator.
func NewInMemoryAggregator() *InMemoryAggregator {
	return &InMemoryAggregator{
		global:    make(map[extract.ArtifactType]map[string]struct{}),
		bySession: make(map[string]map[extract.ArtifactType]map[string]struct{}),
	}
}

// Merge appends artifacts to the global and per-session sets.
func (a *InMemoryAggregator) Merge(_ context.Context, sessionID string, artifacts []extract.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	session := a.bySession[sessionID]
	if session == nil {
		session = make(map[extract.ArtifactType]map[string]struct{})
		a.bySession[sessionID] = session
	}

	for _, art := range artifacts {
		if a.global[art.Type] == nil {
			a.global[art.Type] = make(map[string]struct{})
		}
		a.global[art.Type][art.Value] = struct{}{}

		if session[art.Type] == nil {
			session[art.Type] = make(map[string]struct{})
		}
		session[art.Type][art.Value] = struct{}{}
	}
	return nil
}

// SessionView returns the per-session aggregated view.
func (a *InMemoryAggregator) SessionView(_ context.Context, sessionID string) (View, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return setsToView(a.bySession[sessionID]), nil
}

// GlobalView returns the cross-session aggregated view.
func (a *InMemoryAggregator) GlobalView(_ context.Context) (View, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return setsToView(a.global), nil
}

func setsToView(sets map[extract.ArtifactType]map[string]struct{}) View {
	view := make(View, len(sets))
	for t, values := range sets {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		view[t] = list
	}
	return view
}

var _ Aggregator = (*InMemoryAggregator)(nil)
