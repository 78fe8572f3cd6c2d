package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/TryMightyAI/mirage/pkg/events"
	"github.com/TryMightyAI/mirage/pkg/extract"
)

// captureSink records published events synchronously for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (c *captureSink) Publish(evt *events.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return true
}

func (c *captureSink) byType(t events.Type) []*events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*events.Event
	for _, evt := range c.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	eng, err := NewEngine(opts, WithEventSink(sink))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return eng, sink
}

func scammerMsg(sessionID, text string) *InboundMessage {
	return &InboundMessage{
		SessionID: sessionID,
		Message:   Message{Sender: RoleScammer, Text: text},
	}
}

const scamOpening = "Your account is BLOCKED! Pay 500 to 9876543210@paytm NOW!"

func TestProcess_EngagesOnScamOpening(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	dec, err := eng.Process(ctx, scammerMsg("s1", scamOpening))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if dec.StateBefore != StateMonitoring || dec.StateAfter != StateEngaged {
		t.Errorf("Expected MONITORING -> ENGAGED, got %s -> %s", dec.StateBefore, dec.StateAfter)
	}
	if dec.PassThrough {
		t.Error("Saturated scam opening must not pass through")
	}
	if !dec.ShouldReply {
		t.Error("Engaged session should produce a reply decision")
	}
	if dec.Confidence < 0.70 || dec.Confidence >= 0.85 {
		t.Errorf("Expected confidence in [0.70, 0.85), got %v", dec.Confidence)
	}
	if dec.PersonaID != "busy_professional" {
		t.Errorf("Expected busy_professional persona, got %s", dec.PersonaID)
	}
	if dec.Category != CategoryBanking {
		t.Errorf("Expected banking classification, got %s", dec.Category)
	}

	upis := 0
	for _, art := range dec.NewArtifacts {
		if art.Type == extract.TypeUPI && art.Value == "9876543210@paytm" {
			upis++
		}
		if art.Type == extract.TypePhone {
			t.Errorf("UPI handle leaked as phone artifact: %v", art)
		}
	}
	if upis != 1 {
		t.Errorf("Expected exactly one UPI artifact, got %v", dec.NewArtifacts)
	}

	extracted := sink.byType(events.TypeIntelExtracted)
	if len(extracted) != 1 {
		t.Fatalf("Expected one INTEL_EXTRACTED event, got %d", len(extracted))
	}
	intel, ok := extracted[0].Payload["intelligence"].(map[string][]string)
	if !ok || len(intel["upi"]) != 1 {
		t.Errorf("INTEL_EXTRACTED payload missing UPI: %+v", extracted[0].Payload)
	}
}

func TestProcess_BenignPassThrough(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	dec, err := eng.Process(ctx, scammerMsg("s2", "are we still on for dinner at the cafe"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !dec.PassThrough {
		t.Error("Benign message should pass through")
	}
	if dec.StateAfter != StateMonitoring {
		t.Errorf("Expected MONITORING, got %s", dec.StateAfter)
	}
	if dec.Category != CategoryNotScam {
		t.Errorf("Expected not_scam, got %s", dec.Category)
	}
	if dec.ShouldReply {
		t.Error("Pass-through must not produce a reply")
	}
	if dec.PersonaID != "" {
		t.Errorf("No persona should be assigned pre-engagement, got %s", dec.PersonaID)
	}
	if len(sink.events) != 0 {
		t.Errorf("Pass-through should publish no events, got %d", len(sink.events))
	}
}

func TestProcess_InputValidation(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	if _, err := eng.Process(ctx, nil); err == nil {
		t.Error("Expected error for nil input")
	}
	if _, err := eng.Process(ctx, &InboundMessage{Message: Message{Text: "hi"}}); err == nil {
		t.Error("Expected error for missing session_id")
	}
	if _, err := eng.Process(ctx, &InboundMessage{SessionID: "s"}); err == nil {
		t.Error("Expected error for empty text without silence flag")
	}
}

func TestProcess_SessionIsolation(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("iso-1", scamOpening))
	eng.Process(ctx, scammerMsg("iso-2", "are we still on for dinner"))

	s1, _ := eng.Session("iso-1")
	s2, _ := eng.Session("iso-2")
	if s1 == nil || s2 == nil {
		t.Fatal("Both sessions should exist")
	}
	if s1.State != StateEngaged {
		t.Errorf("Session 1 should be engaged, got %s", s1.State)
	}
	if s2.State != StateMonitoring {
		t.Errorf("Session 2 should still be monitoring, got %s", s2.State)
	}
}

func TestProcess_ScammerTerminationExit(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	if _, err := eng.Process(ctx, scammerMsg("term-1", scamOpening)); err != nil {
		t.Fatal(err)
	}
	dec, err := eng.Process(ctx, scammerMsg("term-1", "not interested, you are wasting my time"))
	if err != nil {
		t.Fatal(err)
	}

	if dec.StateAfter != StateClosed {
		t.Errorf("Expected CLOSED after termination phrase, got %s", dec.StateAfter)
	}
	if dec.ExitReason != string(ExitScammerTerminated) {
		t.Errorf("Expected scammer_terminated, got %s", dec.ExitReason)
	}
	if dec.ExitLine == "" {
		t.Error("Exit decision must carry the persona's exit line")
	}

	completed := sink.byType(events.TypeSessionCompleted)
	if len(completed) != 1 {
		t.Fatalf("Expected one SESSION_COMPLETED event, got %d", len(completed))
	}
	summary, ok := completed[0].Payload["summary"].(map[string]any)
	if !ok || summary["exit_reason"] != string(ExitScammerTerminated) {
		t.Errorf("Completion summary malformed: %+v", completed[0].Payload)
	}
}

func TestProcess_ClosedSessionIsTerminal(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("closed-1", scamOpening))
	if err := eng.CloseSession(ctx, "closed-1"); err != nil {
		t.Fatal(err)
	}

	dec, err := eng.Process(ctx, scammerMsg("closed-1", scamOpening))
	if err != nil {
		t.Fatalf("Processing a closed session is a defined outcome, not an error: %v", err)
	}
	if !dec.Closed || dec.StateAfter != StateClosed {
		t.Errorf("Expected terminal closed outcome, got %+v", dec)
	}
	if dec.ShouldReply {
		t.Error("Closed session must not reply")
	}

	s, _ := eng.Session("closed-1")
	if s.TurnCount != 1 {
		t.Errorf("Closed session must not accumulate turns, got %d", s.TurnCount)
	}
}

func TestProcess_AggressiveEventOncePerCrossing(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	// Strictly rising urgency across four turns; the crossing is at turn 3
	turns := []string{
		"hurry up please",
		"do it now",
		"this is urgent",
		"final warning, act immediately NOW",
	}
	for _, text := range turns {
		if _, err := eng.Process(ctx, scammerMsg("agg-1", text)); err != nil {
			t.Fatal(err)
		}
	}

	aggressive := sink.byType(events.TypeScammerAggressive)
	if len(aggressive) != 1 {
		t.Fatalf("Expected exactly one SCAMMER_AGGRESSIVE event, got %d", len(aggressive))
	}

	s, _ := eng.Session("agg-1")
	if s.AggressionMarks != 1 {
		t.Errorf("Expected one aggression mark, got %d", s.AggressionMarks)
	}
}

func TestProcess_StaleIntelExit(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	// Turn 1 collects two artifact types (UPI + keywords)
	if _, err := eng.Process(ctx, scammerMsg("stale-1", scamOpening)); err != nil {
		t.Fatal(err)
	}

	// Four more turns with no new artifact type
	var dec *Decision
	var err error
	for i := 0; i < 4; i++ {
		dec, err = eng.Process(ctx, scammerMsg("stale-1", "your account will be suspended"))
		if err != nil {
			t.Fatal(err)
		}
	}

	if dec.StateAfter != StateClosed {
		t.Errorf("Expected CLOSED after stale intel window, got %s", dec.StateAfter)
	}
	if dec.ExitReason != string(ExitIntelComplete) {
		t.Errorf("Expected intel_complete, got %s", dec.ExitReason)
	}
	if dec.ExitLine == "" {
		t.Error("Exit decision must carry an exit line")
	}
}

func TestProcess_SilenceExit(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("quiet-1", scamOpening))

	dec, err := eng.Process(ctx, &InboundMessage{
		SessionID:      "quiet-1",
		SilenceElapsed: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.StateAfter != StateClosed || dec.ExitReason != string(ExitSilence) {
		t.Errorf("Expected silence close, got state=%s reason=%s", dec.StateAfter, dec.ExitReason)
	}
}

func TestProcess_TurnCeiling(t *testing.T) {
	opts := DefaultOptions()
	opts.TurnCeiling = 3
	opts.StaleTurnLimit = 10
	eng, _ := newTestEngine(t, opts)
	ctx := context.Background()

	var dec *Decision
	var err error
	for i := 0; i < 3; i++ {
		dec, err = eng.Process(ctx, scammerMsg("cap-1", "pay the processing fee of 500 immediately"))
		if err != nil {
			t.Fatal(err)
		}
	}

	if dec.StateAfter != StateClosed || dec.ExitReason != string(ExitTurnCeiling) {
		t.Errorf("Expected turn_ceiling close at turn 3, got state=%s reason=%s", dec.StateAfter, dec.ExitReason)
	}
}

func TestProcess_IntelDedupAcrossTurns(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("dedup-1", "send money to 9876543210@paytm"))
	dec, err := eng.Process(ctx, scammerMsg("dedup-1", "I repeat, send money to 9876543210@paytm"))
	if err != nil {
		t.Fatal(err)
	}

	for _, art := range dec.NewArtifacts {
		if art.Type == extract.TypeUPI {
			t.Errorf("Re-seen UPI value must not be a new artifact: %v", art)
		}
	}
	if got := len(sink.byType(events.TypeIntelExtracted)); got != 1 {
		t.Errorf("Expected one INTEL_EXTRACTED event for one distinct value, got %d", got)
	}
}

func TestProcess_OCRTextExtraction(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	in := scammerMsg("ocr-1", scamOpening)
	in.OCRText = "SCAN AND PAY 9123456789@okicici"
	dec, err := eng.Process(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	found := map[extract.ArtifactType]bool{}
	for _, art := range dec.NewArtifacts {
		found[art.Type] = true
	}
	if !found[extract.TypeScannedText] {
		t.Error("Expected scanned_text artifact from OCR input")
	}

	s, _ := eng.Session("ocr-1")
	if _, ok := s.Intel[extract.TypeUPI]["9123456789@okicici"]; !ok {
		t.Error("Expected UPI nested in OCR text to be merged")
	}
}

func TestClassify_TiedVotesAreDeterministic(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())

	// "kyc" and "job offer" carry equal vote weight; the first category in
	// registration order must win every time, not flap across runs.
	text := "complete your kyc to receive the job offer"
	for i := 0; i < 25; i++ {
		s := &Session{}
		eng.classify(s, text, "")
		if s.Category != CategoryBanking {
			t.Fatalf("Tied votes resolved to %s on iteration %d, want %s",
				s.Category, i, CategoryBanking)
		}
	}
}

func TestCloseSession(t *testing.T) {
	eng, sink := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("adm-1", scamOpening))

	if err := eng.CloseSession(ctx, "adm-1"); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	// Idempotent: closing again is a no-op
	if err := eng.CloseSession(ctx, "adm-1"); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if got := len(sink.byType(events.TypeSessionCompleted)); got != 1 {
		t.Errorf("Expected one SESSION_COMPLETED, got %d", got)
	}

	if err := eng.CloseSession(ctx, "never-existed"); err == nil {
		t.Error("Closing an unknown session should error")
	}
}

func TestProcess_GlobalIntelAggregation(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultOptions())
	ctx := context.Background()

	eng.Process(ctx, scammerMsg("agg-a", "send money to 9876543210@paytm"))
	eng.Process(ctx, scammerMsg("agg-b", "transfer funds to 9123456789@ybl"))

	view, err := eng.Intel().GlobalView(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(view[extract.TypeUPI]) != 2 {
		t.Errorf("Expected both UPI handles in the global view, got %v", view[extract.TypeUPI])
	}
}
