package engine

// ConfidenceTracker maintains the running per-session scam confidence as an
// exponentially-weighted combination of the previous confidence and the
// current turn's raw score:
//
//	confidence' = confidence*decay + raw*(1-decay)
//
// Decay is the confidence memory across turns: sustained evidence
// accumulates, and confidence degrades when scam signals stop appearing,
// which keeps pass-through correct for sessions that turn out benign.
type ConfidenceTracker struct {
	Decay           float64 // in (0,1); default 0.25
	StreakThreshold int     // consecutive rising-urgency turns before the bump; default 3
	EscalationBump  float64 // one-time confidence bump on detected aggression; default 0.15
}

// NewConfidenceTracker returns a tracker with the given tunables, falling
// back to defaults for zero values.
func NewConfidenceTracker(decay float64, streakThreshold int, bump float64) *ConfidenceTracker {
	t := &ConfidenceTracker{
		Decay:           decay,
		StreakThreshold: streakThreshold,
		EscalationBump:  bump,
	}
	if t.Decay <= 0 || t.Decay >= 1 {
		t.Decay = 0.25
	}
	if t.StreakThreshold <= 0 {
		t.StreakThreshold = 3
	}
	if t.EscalationBump <= 0 {
		t.EscalationBump = 0.15
	}
	return t
}

// Update folds a turn's signals into the session confidence and tracks the
// escalation streak. Returns true exactly when the aggressiveness threshold
// is crossed this turn (the caller emits SCAMMER_AGGRESSIVE once per
// crossing, not once per turn).
func (t *ConfidenceTracker) Update(s *Session, sig TurnSignals) bool {
	s.Confidence = clamp(s.Confidence*t.Decay + sig.Raw*(1-t.Decay))

	crossed := false
	if sig.UrgencyScore > 0 && sig.UrgencyScore > s.LastUrgency {
		s.EscalationStreak++
		if s.EscalationStreak == t.StreakThreshold {
			s.Confidence = clamp(s.Confidence + t.EscalationBump)
			s.AggressionMarks++
			crossed = true
		}
	} else {
		s.EscalationStreak = 0
	}
	s.LastUrgency = sig.UrgencyScore

	return crossed
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
