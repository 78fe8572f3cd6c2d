package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TryMightyAI/mirage/pkg/events"
	"github.com/TryMightyAI/mirage/pkg/extract"
	"github.com/TryMightyAI/mirage/pkg/intel"
	"github.com/TryMightyAI/mirage/pkg/patterns"
)

// Options carries the engine tunables. Every threshold here is an
// operational default, not a contract; deployments tune them per channel.
type Options struct {
	EngageThreshold float64       // below this no engagement happens (default 0.20)
	DecayFactor     float64       // confidence memory across turns (default 0.25)
	JumpMargin      float64       // single-turn persona re-classification margin (default 0.15)
	HoldTurns       int           // turns a new band must persist before switching (default 2)
	StaleTurnLimit  int           // turns without a new artifact type before exit (default 4)
	MinIntelTypes   int           // distinct artifact types that count as complete intel (default 2)
	TurnCeiling     int           // hard conversation length cap (default 20)
	EscalationTurns int           // rising-urgency turns before the aggression bump (default 3)
	EscalationBump  float64       // one-time confidence bump on aggression (default 0.15)
	SemanticWeight  float64       // semantic match contribution to the raw score (default 0.25)
	Weights         SignalWeights // per-signal weights
	Personas        []PersonaProfile
	MaxMessages     int // session history sliding window (default 30)
}

// DefaultOptions returns the default engine tuning.
func DefaultOptions() Options {
	return Options{
		EngageThreshold: 0.20,
		DecayFactor:     0.25,
		JumpMargin:      0.15,
		HoldTurns:       2,
		StaleTurnLimit:  4,
		MinIntelTypes:   2,
		TurnCeiling:     20,
		EscalationTurns: 3,
		EscalationBump:  0.15,
		SemanticWeight:  0.25,
		Weights:         DefaultSignalWeights(),
		Personas:        DefaultPersonas(),
		MaxMessages:     30,
	}
}

// EventSink is where the orchestrator hands off events. Publish must never
// block; the dispatcher satisfies this with its bounded queue.
type EventSink interface {
	Publish(evt *events.Event) bool
}

// Engine is the top-level per-session state machine. It composes the
// extractor, signal scorer, confidence tracker, persona selector, and exit
// evaluator into the per-message decision pipeline.
//
// Sessions are independent units of concurrency: operations for different
// identifiers run in parallel, while all operations against one identifier
// serialize on a per-session lock (single-writer-per-session).
type Engine struct {
	store    SessionStore
	intel    intel.Aggregator
	sink     EventSink
	semantic *SemanticDetector

	tracker  *ConfidenceTracker
	selector *PersonaSelector
	exit     *ExitEvaluator

	weights         SignalWeights
	engageThreshold float64
	semanticWeight  float64
	maxMessages     int

	locks sync.Map // sessionID -> *sync.Mutex
}

// EngineOption is a functional option for configuring the Engine.
type EngineOption func(*Engine)

// WithSessionStore sets a custom session store.
func WithSessionStore(store SessionStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithAggregator sets the global intelligence aggregator.
func WithAggregator(agg intel.Aggregator) EngineOption {
	return func(e *Engine) { e.intel = agg }
}

// WithEventSink sets the event sink. Without one, events are discarded.
func WithEventSink(sink EventSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithSemanticDetector adds the optional semantic scam-script layer.
func WithSemanticDetector(sd *SemanticDetector) EngineOption {
	return func(e *Engine) { e.semantic = sd }
}

// NewEngine validates the persona table and builds the engine.
func NewEngine(opts Options, engOpts ...EngineOption) (*Engine, error) {
	if len(opts.Personas) == 0 {
		opts.Personas = DefaultPersonas()
	}
	selector, err := NewPersonaSelector(opts.Personas, opts.JumpMargin)
	if err != nil {
		return nil, fmt.Errorf("persona table: %w", err)
	}
	if opts.HoldTurns > 0 {
		selector.holdTurns = opts.HoldTurns
	}

	if opts.EngageThreshold <= 0 {
		opts.EngageThreshold = 0.20
	}
	if opts.SemanticWeight <= 0 {
		opts.SemanticWeight = 0.25
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 30
	}
	zero := SignalWeights{}
	if opts.Weights == zero {
		opts.Weights = DefaultSignalWeights()
	}

	e := &Engine{
		store:           NewInMemoryStore(),
		intel:           intel.NewInMemoryAggregator(),
		tracker:         NewConfidenceTracker(opts.DecayFactor, opts.EscalationTurns, opts.EscalationBump),
		selector:        selector,
		exit:            NewExitEvaluator(opts.StaleTurnLimit, opts.MinIntelTypes, opts.TurnCeiling),
		weights:         opts.Weights,
		engageThreshold: opts.EngageThreshold,
		semanticWeight:  opts.SemanticWeight,
		maxMessages:     opts.MaxMessages,
	}

	for _, opt := range engOpts {
		opt(e)
	}

	return e, nil
}

// lockFor returns the serialization lock for a session identifier.
func (e *Engine) lockFor(sessionID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Process runs the full per-message pipeline and returns the decision.
// It never fails for content reasons: scoring, extraction, and persona
// selection are total functions. Errors surface only for malformed input
// or a broken session store.
func (e *Engine) Process(ctx context.Context, in *InboundMessage) (*Decision, error) {
	if in == nil {
		return nil, fmt.Errorf("inbound message is nil")
	}
	if in.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if in.Message.Text == "" && in.OCRText == "" && !in.SilenceElapsed {
		return nil, fmt.Errorf("message text is required")
	}
	if in.Message.Sender == "" {
		in.Message.Sender = RoleScammer
	}
	if in.Message.Timestamp.IsZero() {
		in.Message.Timestamp = time.Now()
	}

	mu := e.lockFor(in.SessionID)
	mu.Lock()
	defer mu.Unlock()

	s, err := e.store.Get(in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		s = newSession(in.SessionID, e.maxMessages)
	}

	dec := &Decision{
		SessionID:   in.SessionID,
		StateBefore: s.State,
		Category:    s.Category,
	}

	// Closed sessions accept no further processing: a defined terminal
	// outcome, not an error.
	if s.State == StateClosed {
		dec.StateAfter = StateClosed
		dec.Closed = true
		dec.Confidence = s.Confidence
		return dec, nil
	}

	s.Messages = append(s.Messages, in.Message)
	s.LastActivityAt = time.Now()
	if in.Message.Sender == RoleScammer {
		s.TurnCount++
	}

	// Extraction runs before any threshold decision so intelligence from
	// early messages is never lost.
	newArtifacts := e.extractAndMerge(ctx, s, in)
	dec.NewArtifacts = newArtifacts

	// Score the turn against history prior to this message.
	prevConf := s.Confidence
	history := s.Messages[:len(s.Messages)-1]
	sig := ScoreMessage(in.Message.Text, history, e.weights)
	semanticCategory := e.applySemantic(ctx, in.Message.Text, &sig)
	aggressive := e.tracker.Update(s, sig)

	e.classify(s, in.Message.Text, semanticCategory)

	// Pass-through: still MONITORING and below the engagement floor.
	if s.State == StateMonitoring && s.Confidence < e.engageThreshold {
		s.Category = CategoryNotScam
		s.CategoryScore = 0
		dec.Category = CategoryNotScam
		dec.StateAfter = StateMonitoring
		dec.Confidence = s.Confidence
		dec.PassThrough = true
		if err := e.store.Save(s); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return dec, nil
	}

	if s.State == StateMonitoring {
		s.State = StateEngaged
		if s.Category == CategoryNotScam || s.Category == "" {
			s.Category = CategoryUnknown
		}
	}

	e.selector.Select(s, prevConf)

	var queue []*events.Event
	if len(newArtifacts) > 0 {
		queue = append(queue, events.New(events.TypeIntelExtracted, s.SessionID, map[string]any{
			"intelligence": artifactsByType(newArtifacts),
		}))
	}
	if aggressive {
		queue = append(queue, events.New(events.TypeScammerAggressive, s.SessionID, map[string]any{
			"aggression_marks":  s.AggressionMarks,
			"escalation_streak": s.EscalationStreak,
			"urgency_score":     sig.UrgencyScore,
		}))
	}

	if reason, exitNow := e.exit.Evaluate(s, in.Message.Text, in.SilenceElapsed); exitNow {
		// ENGAGED -> EXITING, issue the exit line exactly once, then
		// EXITING -> CLOSED within the same decision.
		s.State = StateExiting
		s.ExitReason = string(reason)
		dec.ExitReason = string(reason)
		dec.ExitLine = e.selector.Profile(s.BandIdx).ExitLine
		dec.ShouldReply = true
		s.ExitIssued = true
		s.State = StateClosed

		queue = append(queue, e.completionEvent(s))
	} else {
		dec.ShouldReply = true
	}

	dec.PersonaID = s.PersonaID
	dec.Category = s.Category
	dec.StateAfter = s.State
	dec.Confidence = s.Confidence

	if err := e.store.Save(s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	e.publish(queue)
	return dec, nil
}

// CloseSession performs an administrative close (external termination, not
// scam-driven). Idempotent: closing a closed session is a no-op.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) error {
	mu := e.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	s, err := e.store.Get(sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	if s.State == StateClosed {
		return nil
	}

	s.State = StateClosed
	s.ExitReason = "administrative_close"
	if err := e.store.Save(s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	e.publish([]*events.Event{e.completionEvent(s)})
	return nil
}

// Session returns the current state for a session identifier, or nil if
// unknown or expired.
func (e *Engine) Session(sessionID string) (*Session, error) {
	return e.store.Get(sessionID)
}

// Intel exposes the global aggregator for the query surface.
func (e *Engine) Intel() intel.Aggregator {
	return e.intel
}

// Persona resolves a persona profile by ID for reply synthesis.
func (e *Engine) Persona(id string) *PersonaProfile {
	return e.selector.ByID(id)
}

func newSession(sessionID string, maxMessages int) *Session {
	now := time.Now()
	return &Session{
		SessionID:      sessionID,
		CreatedAt:      now,
		LastActivityAt: now,
		State:          StateMonitoring,
		Category:       CategoryNotScam,
		MaxMessages:    maxMessages,
		Intel:          make(map[extract.ArtifactType]map[string]struct{}),
		BandIdx:        -1,
		CandidateBand:  -1,
	}
}

// extractAndMerge runs the extractor over the message (and OCR text when
// supplied), merges results into the session's artifact set, and records
// which artifacts are new this turn. Extraction is idempotent: re-seeing a
// value changes nothing.
func (e *Engine) extractAndMerge(ctx context.Context, s *Session, in *InboundMessage) []extract.Artifact {
	artifacts := extract.FromText(in.Message.Text)
	if in.OCRText != "" {
		artifacts = append(artifacts, extract.FromScannedText(in.OCRText)...)
	}
	if len(artifacts) == 0 {
		return nil
	}

	var fresh []extract.Artifact
	newType := false
	for _, art := range artifacts {
		values := s.Intel[art.Type]
		if values == nil {
			values = make(map[string]struct{})
			s.Intel[art.Type] = values
		}
		if _, seen := values[art.Value]; seen {
			continue
		}
		if len(values) == 0 {
			newType = true
		}
		values[art.Value] = struct{}{}
		art.SessionID = s.SessionID
		fresh = append(fresh, art)
	}
	if newType {
		s.LastNewTypeTurn = s.TurnCount
	}

	if len(fresh) > 0 {
		if err := e.intel.Merge(ctx, s.SessionID, fresh); err != nil {
			// The session-level set stays authoritative; a failed global
			// merge must not abort message processing.
			log.Printf("[WARN] intel merge failed for session %s: %v", s.SessionID, err)
		}
	}
	return fresh
}

// applySemantic folds an optional semantic scam-script match into the raw
// score. Returns the matched category as a classification vote, or "".
func (e *Engine) applySemantic(ctx context.Context, text string, sig *TurnSignals) ScamCategory {
	if e.semantic == nil || !e.semantic.IsReady() || text == "" {
		return ""
	}
	match, err := e.semantic.Match(ctx, text)
	if err != nil || match == nil || !match.IsScam {
		return ""
	}
	sig.Raw = clamp(sig.Raw + e.semanticWeight*match.Score)
	sig.Reasons = append(sig.Reasons, "semantic:"+match.MatchedText)
	return match.Category
}

// categoryPatterns maps classifier vote categories to pattern categories.
// Fixed order: equal votes must resolve the same way on every run.
var categoryPatterns = []struct {
	cat ScamCategory
	pat patterns.Category
}{
	{CategoryBanking, patterns.CategoryBanking},
	{CategoryTechSupport, patterns.CategoryTechSupport},
	{CategoryPrizeLottery, patterns.CategoryPrize},
	{CategoryRomance, patterns.CategoryRomance},
	{CategoryJobOffer, patterns.CategoryJobOffer},
}

// classify updates the session's scam category. The classification is
// sticky: a new category takes over only with a strictly stronger vote, so
// ties keep the previous assignment and the label never flaps.
func (e *Engine) classify(s *Session, text string, semanticVote ScamCategory) {
	reg := patterns.Get()

	best := ScamCategory("")
	bestScore := 0
	for _, cp := range categoryPatterns {
		score := reg.CategoryScore(text, cp.pat)
		if cp.cat == semanticVote {
			score += 50
		}
		if score > bestScore {
			best = cp.cat
			bestScore = score
		}
	}

	if best != "" && bestScore > s.CategoryScore {
		s.Category = best
		s.CategoryScore = bestScore
	}
}

// completionEvent builds the SESSION_COMPLETED event carrying the full
// aggregated intelligence report for the session.
func (e *Engine) completionEvent(s *Session) *events.Event {
	return events.New(events.TypeSessionCompleted, s.SessionID, map[string]any{
		"summary": map[string]any{
			"scam_category":    string(s.Category),
			"final_confidence": s.Confidence,
			"turns":            s.TurnCount,
			"persona_id":       s.PersonaID,
			"exit_reason":      s.ExitReason,
			"aggression_marks": s.AggressionMarks,
			"intelligence":     s.IntelView(),
		},
	})
}

func (e *Engine) publish(queue []*events.Event) {
	if e.sink == nil {
		return
	}
	for _, evt := range queue {
		e.sink.Publish(evt)
	}
}

func artifactsByType(artifacts []extract.Artifact) map[string][]string {
	byType := make(map[string][]string)
	for _, art := range artifacts {
		byType[string(art.Type)] = append(byType[string(art.Type)], art.Value)
	}
	return byType
}
