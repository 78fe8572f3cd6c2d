package engine

import (
	"testing"

	"github.com/TryMightyAI/mirage/pkg/extract"
)

func sessionWithIntel(types ...extract.ArtifactType) *Session {
	s := &Session{Intel: make(map[extract.ArtifactType]map[string]struct{})}
	for _, t := range types {
		s.Intel[t] = map[string]struct{}{"v": {}}
	}
	return s
}

func TestEvaluate_Silence(t *testing.T) {
	e := NewExitEvaluator(4, 2, 20)
	reason, exit := e.Evaluate(&Session{}, "", true)
	if !exit || reason != ExitSilence {
		t.Errorf("Expected silence exit, got %v %v", reason, exit)
	}
}

func TestEvaluate_ScammerTermination(t *testing.T) {
	e := NewExitEvaluator(4, 2, 20)

	reason, exit := e.Evaluate(&Session{TurnCount: 3}, "you are wasting my time, goodbye", false)
	if !exit || reason != ExitScammerTerminated {
		t.Errorf("Expected scammer_terminated, got %v %v", reason, exit)
	}

	if _, exit := e.Evaluate(&Session{TurnCount: 3}, "please complete the payment", false); exit {
		t.Error("Non-terminal message should not trigger exit")
	}
}

func TestEvaluate_TurnCeiling(t *testing.T) {
	e := NewExitEvaluator(4, 2, 20)

	if _, exit := e.Evaluate(&Session{TurnCount: 19}, "hello", false); exit {
		t.Error("Turn 19 should not hit a ceiling of 20")
	}
	reason, exit := e.Evaluate(&Session{TurnCount: 20}, "hello", false)
	if !exit || reason != ExitTurnCeiling {
		t.Errorf("Expected turn_ceiling at 20, got %v %v", reason, exit)
	}
}

func TestEvaluate_IntelComplete(t *testing.T) {
	e := NewExitEvaluator(4, 2, 20)

	// Two artifact types, four turns since the last new type
	s := sessionWithIntel(extract.TypeUPI, extract.TypePhone)
	s.TurnCount = 6
	s.LastNewTypeTurn = 2
	reason, exit := e.Evaluate(s, "any message", false)
	if !exit || reason != ExitIntelComplete {
		t.Errorf("Expected intel_complete, got %v %v", reason, exit)
	}

	// Still fresh: a new type arrived recently
	s.LastNewTypeTurn = 4
	if _, exit := e.Evaluate(s, "any message", false); exit {
		t.Error("Recent new artifact type should keep the session open")
	}

	// Only one type collected: never complete regardless of staleness
	one := sessionWithIntel(extract.TypeUPI)
	one.TurnCount = 10
	one.LastNewTypeTurn = 1
	if _, exit := e.Evaluate(one, "any message", false); exit {
		t.Error("One artifact type should not satisfy completeness")
	}
}

func TestEvaluate_MinIntelTypesFloor(t *testing.T) {
	e := NewExitEvaluator(4, 3, 20)

	s := sessionWithIntel(extract.TypeUPI, extract.TypePhone)
	s.TurnCount = 10
	s.LastNewTypeTurn = 1
	if _, exit := e.Evaluate(s, "any message", false); exit {
		t.Error("Two artifact types should not satisfy a floor of three")
	}

	s.Intel[extract.TypeKeyword] = map[string]struct{}{"v": {}}
	reason, exit := e.Evaluate(s, "any message", false)
	if !exit || reason != ExitIntelComplete {
		t.Errorf("Expected intel_complete with three types, got %v %v", reason, exit)
	}
}

func TestEvaluate_SilenceWinsOverOtherTriggers(t *testing.T) {
	e := NewExitEvaluator(4, 2, 20)
	s := sessionWithIntel(extract.TypeUPI, extract.TypePhone)
	s.TurnCount = 25

	reason, _ := e.Evaluate(s, "goodbye", true)
	if reason != ExitSilence {
		t.Errorf("Silence should take precedence, got %v", reason)
	}
}
