package engine

import (
	"github.com/TryMightyAI/mirage/pkg/patterns"
)

// ExitReason explains why a session moved to EXITING.
type ExitReason string

const (
	ExitIntelComplete     ExitReason = "intel_complete"
	ExitTurnCeiling       ExitReason = "turn_ceiling"
	ExitScammerTerminated ExitReason = "scammer_terminated"
	ExitSilence           ExitReason = "silence"
)

// ExitEvaluator decides, each turn while ENGAGED, whether a conversation
// has run its course. It never errors: a turn either produces an exit
// reason or it does not.
type ExitEvaluator struct {
	// StaleTurnLimit is how many turns without a new artifact *type* count
	// as extraction completeness (given at least MinIntelTypes collected).
	StaleTurnLimit int
	// MinIntelTypes is the distinct-type floor for the completeness trigger.
	MinIntelTypes int
	// TurnCeiling caps total conversation length.
	TurnCeiling int
}

// NewExitEvaluator returns an evaluator with defaults for zero values.
func NewExitEvaluator(staleTurnLimit, minIntelTypes, turnCeiling int) *ExitEvaluator {
	e := &ExitEvaluator{
		StaleTurnLimit: staleTurnLimit,
		MinIntelTypes:  minIntelTypes,
		TurnCeiling:    turnCeiling,
	}
	if e.StaleTurnLimit <= 0 {
		e.StaleTurnLimit = 4
	}
	if e.MinIntelTypes <= 0 {
		e.MinIntelTypes = 2
	}
	if e.TurnCeiling <= 0 {
		e.TurnCeiling = 20
	}
	return e
}

// Evaluate checks the exit triggers for the current turn. text is the
// incoming scammer message; silenceElapsed is supplied externally since
// the core runs no timers.
func (e *ExitEvaluator) Evaluate(s *Session, text string, silenceElapsed bool) (ExitReason, bool) {
	if silenceElapsed {
		return ExitSilence, true
	}

	if patterns.Get().MatchAny(text, patterns.CategoryTermination) != nil {
		return ExitScammerTerminated, true
	}

	if s.TurnCount >= e.TurnCeiling {
		return ExitTurnCeiling, true
	}

	// Sustained extraction completeness: enough distinct artifact types and
	// nothing new for StaleTurnLimit turns.
	if s.IntelTypeCount() >= e.MinIntelTypes &&
		s.TurnCount-s.LastNewTypeTurn >= e.StaleTurnLimit {
		return ExitIntelComplete, true
	}

	return "", false
}
