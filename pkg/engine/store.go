package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/TryMightyAI/mirage/pkg/extract"
)

// SessionStore defines pluggable storage for session state.
// The in-memory store is the default; distributed deployments can swap in
// a backed implementation as long as it honors the same contract.
type SessionStore interface {
	// Get retrieves a session by ID. Returns nil, nil if not found.
	Get(sessionID string) (*Session, error)

	// Save creates or updates a session.
	Save(session *Session) error

	// Delete removes a session.
	Delete(sessionID string) error

	// Range calls fn for every live session until fn returns false.
	Range(fn func(*Session) bool) error
}

// InMemoryStore is a thread-safe in-memory session store with TTL-based
// cleanup. Suitable for single-node deployments.
type InMemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	maxAge     time.Duration // Session TTL (default: 1 hour)
	cleanupTTL time.Duration // Cleanup interval (default: 5 minutes)

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// StoreOption is a functional option for configuring InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithMaxAge sets the maximum age for sessions before cleanup.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *InMemoryStore) {
		s.maxAge = d
	}
}

// WithCleanupInterval sets how often the cleanup routine runs.
func WithCleanupInterval(d time.Duration) StoreOption {
	return func(s *InMemoryStore) {
		s.cleanupTTL = d
	}
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		sessions:    make(map[string]*Session),
		maxAge:      1 * time.Hour,
		cleanupTTL:  5 * time.Minute,
		stopCleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Get retrieves a session by ID. Returns nil, nil if not found.
// Sessions past their TTL are treated as not found; actual removal
// happens in the cleanup loop.
func (s *InMemoryStore) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	if time.Since(session.LastActivityAt) > s.maxAge {
		return nil, nil
	}

	return session, nil
}

// Save creates or updates a session.
func (s *InMemoryStore) Save(session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if session.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = time.Now()
	}
	if session.MaxMessages == 0 {
		session.MaxMessages = 30
	}
	if session.Intel == nil {
		session.Intel = make(map[extract.ArtifactType]map[string]struct{})
	}

	// Trim to max messages (sliding window)
	if len(session.Messages) > session.MaxMessages {
		session.Messages = session.Messages[len(session.Messages)-session.MaxMessages:]
	}

	s.sessions[session.SessionID] = session
	return nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Range calls fn for every live session until fn returns false.
func (s *InMemoryStore) Range(fn func(*Session) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if !fn(session) {
			break
		}
	}
	return nil
}

// Close stops the cleanup goroutine.
func (s *InMemoryStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// cleanupLoop periodically removes expired sessions.
func (s *InMemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes expired sessions.
func (s *InMemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if now.Sub(session.LastActivityAt) > s.maxAge {
			delete(s.sessions, id)
		}
	}
}

// StoreStats contains session store statistics.
type StoreStats struct {
	SessionCount int `json:"session_count"`
	TotalTurns   int `json:"total_turns"`
	EngagedCount int `json:"engaged_count"`
}

// Stats returns current session store statistics.
func (s *InMemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		SessionCount: len(s.sessions),
	}
	for _, session := range s.sessions {
		stats.TotalTurns += session.TurnCount
		if session.State == StateEngaged {
			stats.EngagedCount++
		}
	}
	return stats
}

// Ensure InMemoryStore implements SessionStore
var _ SessionStore = (*InMemoryStore)(nil)
