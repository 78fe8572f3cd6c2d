package engine

import (
	"time"

	"github.com/TryMightyAI/mirage/pkg/extract"
)

// Role identifies who authored a message in a session.
type Role string

const (
	RoleScammer Role = "scammer"
	RoleAgent   Role = "agent"
)

// Message is an immutable conversation entry. Messages are appended to a
// session and never edited or removed.
type Message struct {
	Sender    Role      `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// State is a session lifecycle state.
type State string

const (
	StateMonitoring State = "MONITORING"
	StateEngaged    State = "ENGAGED"
	StateExiting    State = "EXITING"
	StateClosed     State = "CLOSED"
)

// ScamCategory classifies what kind of scam a session looks like.
type ScamCategory string

const (
	CategoryBanking      ScamCategory = "banking"
	CategoryTechSupport  ScamCategory = "tech_support"
	CategoryPrizeLottery ScamCategory = "prize_lottery"
	CategoryRomance      ScamCategory = "romance"
	CategoryJobOffer     ScamCategory = "job_offer"
	CategoryUnknown      ScamCategory = "unknown"
	CategoryNotScam      ScamCategory = "not_scam"
)

// Session tracks all per-conversation state. Owned exclusively by the
// orchestrator: all mutation happens under the per-session lock, never
// concurrently for the same identifier.
type Session struct {
	SessionID      string    `json:"session_id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	State      State        `json:"state"`
	Confidence float64      `json:"confidence"`
	PersonaID  string       `json:"persona_id,omitempty"` // empty until engaged
	Category   ScamCategory `json:"category"`
	TurnCount  int          `json:"turn_count"`

	// Message history (sliding window)
	Messages    []Message `json:"messages"`
	MaxMessages int       `json:"max_messages"`

	// Aggregated intelligence, deduplicated by (type, normalized value).
	// This per-session set is authoritative; events are best-effort copies.
	Intel map[extract.ArtifactType]map[string]struct{} `json:"-"`

	// Category stickiness: the vote strength that won the current category.
	// A new category takes over only with a strictly higher score.
	CategoryScore int `json:"category_score"`

	// Escalation tracking
	LastUrgency      float64 `json:"last_urgency"`
	EscalationStreak int     `json:"escalation_streak"`
	AggressionMarks  int     `json:"aggression_marks"`

	// Persona hysteresis state, carried explicitly so the transition rule
	// is testable in isolation.
	BandIdx          int `json:"band_idx"` // -1 before first assignment
	CandidateBand    int `json:"candidate_band"`
	TurnsInCandidate int `json:"turns_in_candidate"`

	// Exit bookkeeping
	LastNewTypeTurn int    `json:"last_new_type_turn"`
	ExitReason      string `json:"exit_reason,omitempty"`
	ExitIssued      bool   `json:"exit_issued"`
}

// IntelTypeCount returns how many distinct artifact types this session has
// collected so far.
func (s *Session) IntelTypeCount() int {
	n := 0
	for _, values := range s.Intel {
		if len(values) > 0 {
			n++
		}
	}
	return n
}

// IntelView returns the session's artifact sets as sorted-insensitive
// string slices, suitable for reports and API responses.
func (s *Session) IntelView() map[extract.ArtifactType][]string {
	view := make(map[extract.ArtifactType][]string, len(s.Intel))
	for t, values := range s.Intel {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		view[t] = list
	}
	return view
}

// InboundMessage is the orchestrator's intake contract. OCRText carries the
// text fields from the external vision collaborator for image-bearing
// messages; SilenceElapsed is supplied by the external timer the core does
// not run itself.
type InboundMessage struct {
	SessionID      string  `json:"session_id"`
	Message        Message `json:"message"`
	OCRText        string  `json:"ocr_text,omitempty"`
	SilenceElapsed bool    `json:"silence_elapsed,omitempty"`
	Channel        string  `json:"channel,omitempty"`
	Language       string  `json:"language,omitempty"`
	Locale         string  `json:"locale,omitempty"`
}

// Decision is the orchestrator's per-message outcome. Reply text itself is
// synthesized by the external LLM collaborator; the decision only carries
// the context that collaborator needs.
type Decision struct {
	SessionID    string             `json:"session_id"`
	ShouldReply  bool               `json:"should_reply"`
	PersonaID    string             `json:"persona_id,omitempty"`
	Category     ScamCategory       `json:"scam_category"`
	StateBefore  State              `json:"state_before"`
	StateAfter   State              `json:"state_after"`
	Confidence   float64            `json:"confidence"`
	PassThrough  bool               `json:"pass_through"`
	Closed       bool               `json:"closed"` // terminal closed-session outcome
	ExitLine     string             `json:"exit_line,omitempty"`
	ExitReason   string             `json:"exit_reason,omitempty"`
	NewArtifacts []extract.Artifact `json:"new_artifacts,omitempty"`
}
