package engine

import (
	"strings"

	"github.com/TryMightyAI/mirage/pkg/extract"
	"github.com/TryMightyAI/mirage/pkg/patterns"
)

// SignalWeights holds the per-signal contribution to a turn's raw score.
// The raw score is the sum of active weights, clamped to [0,1].
type SignalWeights struct {
	Urgency        float64 `json:"urgency"`
	PaymentRequest float64 `json:"payment_request"`
	Threat         float64 `json:"threat"`
	Repetition     float64 `json:"repetition"`
}

// DefaultSignalWeights returns the default signal weighting. A message that
// trips urgency + payment + threat together saturates the raw score.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Urgency:        0.35,
		PaymentRequest: 0.35,
		Threat:         0.30,
		Repetition:     0.20,
	}
}

// repetitionThreshold is the normalized-text similarity above which a
// message counts as a structural repeat of a prior scammer message.
const repetitionThreshold = 0.80

// TurnSignals is the signal scorer's per-message output.
type TurnSignals struct {
	Urgency        bool     `json:"urgency"`
	PaymentRequest bool     `json:"payment_request"`
	Threat         bool     `json:"threat"`
	Repetition     bool     `json:"repetition"`
	UrgencyScore   float64  `json:"urgency_score"` // graded, for escalation tracking
	Raw            float64  `json:"raw"`           // clamped sum of active weights
	Reasons        []string `json:"reasons,omitempty"`
}

// ScoreMessage computes the weighted signals for a single message against
// the session's prior scammer messages. Pure function: no session mutation,
// total over its domain (empty text scores zero).
func ScoreMessage(text string, history []Message, w SignalWeights) TurnSignals {
	sig := TurnSignals{}
	if strings.TrimSpace(text) == "" {
		return sig
	}

	reg := patterns.Get()

	urgencyMatches := reg.MatchAll(text, patterns.CategoryUrgency)
	if len(urgencyMatches) > 0 {
		sig.Urgency = true
		sig.Raw += w.Urgency
		for _, p := range urgencyMatches {
			sig.UrgencyScore += float64(p.Severity) / 100.0
			sig.Reasons = append(sig.Reasons, p.Name)
		}
		if sig.UrgencyScore > 1.0 {
			sig.UrgencyScore = 1.0
		}
	}

	if p := reg.MatchAny(text, patterns.CategoryPaymentRequest); p != nil {
		sig.PaymentRequest = true
		sig.Raw += w.PaymentRequest
		sig.Reasons = append(sig.Reasons, p.Name)
	}

	if p := reg.MatchAny(text, patterns.CategoryThreat); p != nil {
		sig.Threat = true
		sig.Raw += w.Threat
		sig.Reasons = append(sig.Reasons, p.Name)
	}

	if isRepetition(text, history) {
		sig.Repetition = true
		sig.Raw += w.Repetition
		sig.Reasons = append(sig.Reasons, "structural_repetition")
	}

	if sig.Raw > 1.0 {
		sig.Raw = 1.0
	}

	return sig
}

// isRepetition reports whether text is a near-duplicate of any prior
// scammer message. Scammers repeating their script is itself a signal.
func isRepetition(text string, history []Message) bool {
	for _, msg := range history {
		if msg.Sender != RoleScammer {
			continue
		}
		if Similarity(text, msg.Text) >= repetitionThreshold {
			return true
		}
	}
	return false
}

// Similarity computes token-set Jaccard similarity over normalized text.
// Returns a value in [0,1]; two empty texts are considered identical.
func Similarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range ta {
		if tb[tok] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(extract.Normalize(text)) {
		tok = strings.Trim(tok, ".,!?;:'\"()")
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
