// Package events carries classified scam events from the session
// orchestrator to external notification targets.
//
// Delivery is best-effort and at-least-once: the orchestrator publishes
// without blocking, a background consumer fans events out to registered
// targets with bounded retries, and each event carries a deduplication key
// so receivers can discard duplicates from retried deliveries. Dispatch
// failure never touches session state.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event for receivers.
type Type string

const (
	TypeIntelExtracted    Type = "INTEL_EXTRACTED"
	TypeScammerAggressive Type = "SCAMMER_AGGRESSIVE"
	TypeSessionCompleted  Type = "SESSION_COMPLETED"
)

// Event is an immutable notification produced by the orchestrator.
type Event struct {
	Type      Type           `json:"event"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	DedupKey  string         `json:"dedup_key"`
}

// New builds an event with a fresh delivery-deduplication key.
func New(t Type, sessionID string, payload map[string]any) *Event {
	return &Event{
		Type:      t,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		DedupKey:  uuid.NewString(),
	}
}

// Target is a notification receiver. Deliver should return an error for
// retryable failures; the dispatcher handles backoff and gives up after
// its attempt ceiling.
type Target interface {
	Name() string
	Deliver(ctx context.Context, evt *Event) error
}
