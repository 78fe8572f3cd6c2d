package engine

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// PersonaProfile is a static configuration entry mapping a confidence band
// to a behavioral profile. The mapping is intentionally inverted: the more
// certain the engine is of a scam, the more naive and compliant-seeming the
// persona, to maximize intelligence extraction before the scammer bails.
type PersonaProfile struct {
	ID         string  `yaml:"id" json:"id"`
	Low        float64 `yaml:"low" json:"low"`   // inclusive
	High       float64 `yaml:"high" json:"high"` // exclusive, except the top band which includes 1.0
	Descriptor string  `yaml:"descriptor" json:"descriptor"`
	ExitLine   string  `yaml:"exit_line" json:"exit_line"`
}

// DefaultPersonas returns the built-in seven-band persona table, ordered by
// band, partitioning [0,1].
func DefaultPersonas() []PersonaProfile {
	return []PersonaProfile{
		{
			ID: "tech_savvy", Low: 0.0, High: 0.20,
			Descriptor: "technically fluent, asks for verification, quotes security practice",
			ExitLine:   "I've verified this with the official support line - they have no record of this. I'm done here.",
		},
		{
			ID: "paranoid_user", Low: 0.20, High: 0.30,
			Descriptor: "suspicious of everything, asks who is calling and why, double-checks names",
			ExitLine:   "I don't trust this at all. My nephew said never to reply to these numbers. Goodbye.",
		},
		{
			ID: "over_polite", Low: 0.30, High: 0.40,
			Descriptor: "excessively courteous, apologizes often, reluctant to refuse outright",
			ExitLine:   "So sorry to trouble you, but I really must go now. Thank you so much for your patience!",
		},
		{
			ID: "nervous_elder", Low: 0.40, High: 0.45,
			Descriptor: "anxious, confused by technology, asks for steps to be repeated",
			ExitLine:   "Oh dear, my grandson just arrived, he handles all this bank business. Bye bye now.",
		},
		{
			ID: "curious_student", Low: 0.45, High: 0.70,
			Descriptor: "asks lots of questions, wants details about the process and the company",
			ExitLine:   "My exams start tomorrow so I have to log off. I'll look into this after, promise!",
		},
		{
			ID: "busy_professional", Low: 0.70, High: 0.85,
			Descriptor: "pressed for time, asks for the short version, wants everything in writing",
			ExitLine:   "I'm boarding a flight, send me the full details in writing and I'll sort it next week.",
		},
		{
			ID: "confused_user", Low: 0.85, High: 1.0,
			Descriptor: "maximally naive and compliant-seeming, misreads instructions, needs hand-holding",
			ExitLine:   "My phone battery is at 1% and I can't find the charger... I'll try again tomorrow maybe.",
		},
	}
}

const bandEpsilon = 1e-9

// ValidateBands checks the configuration-integrity invariant: the bands
// must be ordered and partition [0,1] with no gaps or overlaps.
func ValidateBands(bands []PersonaProfile) error {
	if len(bands) == 0 {
		return fmt.Errorf("persona table is empty")
	}
	if math.Abs(bands[0].Low) > bandEpsilon {
		return fmt.Errorf("first band %q must start at 0.0, got %v", bands[0].ID, bands[0].Low)
	}
	for i, b := range bands {
		if b.ID == "" {
			return fmt.Errorf("band %d has no persona id", i)
		}
		if b.High <= b.Low {
			return fmt.Errorf("band %q is empty or inverted: [%v, %v)", b.ID, b.Low, b.High)
		}
		if i > 0 && math.Abs(b.Low-bands[i-1].High) > bandEpsilon {
			return fmt.Errorf("gap or overlap between %q and %q at %v", bands[i-1].ID, b.ID, b.Low)
		}
	}
	last := bands[len(bands)-1]
	if math.Abs(last.High-1.0) > bandEpsilon {
		return fmt.Errorf("last band %q must end at 1.0, got %v", last.ID, last.High)
	}
	return nil
}

// LoadPersonaFile reads a persona table override from a YAML file. The
// loaded table is validated with the same partition invariant as the
// built-in one.
func LoadPersonaFile(path string) ([]PersonaProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var doc struct {
		Personas []PersonaProfile `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	if err := ValidateBands(doc.Personas); err != nil {
		return nil, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	return doc.Personas, nil
}

// PersonaSelector maps confidence to a persona with anti-oscillation
// hysteresis. A persona change is applied only when confidence has sat in
// the new band for holdTurns consecutive turns, or when the single-turn
// confidence move exceeds jumpMargin (a decisive re-classification, e.g. a
// sudden explicit threat). First assignment bypasses hysteresis.
type PersonaSelector struct {
	bands      []PersonaProfile
	jumpMargin float64
	holdTurns  int
}

// NewPersonaSelector validates the band table and builds a selector.
func NewPersonaSelector(bands []PersonaProfile, jumpMargin float64) (*PersonaSelector, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	if jumpMargin <= 0 {
		jumpMargin = 0.15
	}
	return &PersonaSelector{bands: bands, jumpMargin: jumpMargin, holdTurns: 2}, nil
}

// BandIndex returns the index of the band containing conf. The top band is
// closed at 1.0 so every confidence in [0,1] lands somewhere.
func (ps *PersonaSelector) BandIndex(conf float64) int {
	for i, b := range ps.bands {
		if conf >= b.Low && conf < b.High {
			return i
		}
	}
	return len(ps.bands) - 1
}

// Profile returns the persona at a band index.
func (ps *PersonaSelector) Profile(idx int) PersonaProfile {
	if idx < 0 || idx >= len(ps.bands) {
		return ps.bands[0]
	}
	return ps.bands[idx]
}

// ByID looks up a persona profile by identifier. Returns nil if unknown.
func (ps *PersonaSelector) ByID(id string) *PersonaProfile {
	for i := range ps.bands {
		if ps.bands[i].ID == id {
			return &ps.bands[i]
		}
	}
	return nil
}

// Select applies the hysteresis rule to the session's current confidence
// and updates the session's persona state in place. prevConf is the
// confidence before this turn's update; the delta against it decides the
// jump-margin bypass. Returns true if the persona changed.
func (ps *PersonaSelector) Select(s *Session, prevConf float64) bool {
	idx := ps.BandIndex(s.Confidence)

	// First assignment (MONITORING -> ENGAGED) is immediate.
	if s.BandIdx < 0 {
		ps.assign(s, idx)
		return true
	}

	if idx == s.BandIdx {
		s.CandidateBand = idx
		s.TurnsInCandidate = 0
		return false
	}

	// Decisive single-turn move: re-classify immediately.
	if math.Abs(s.Confidence-prevConf) > ps.jumpMargin {
		ps.assign(s, idx)
		return true
	}

	// Otherwise the new band must hold for consecutive turns.
	if idx == s.CandidateBand {
		s.TurnsInCandidate++
	} else {
		s.CandidateBand = idx
		s.TurnsInCandidate = 1
	}
	if s.TurnsInCandidate >= ps.holdTurns {
		ps.assign(s, idx)
		return true
	}
	return false
}

func (ps *PersonaSelector) assign(s *Session, idx int) {
	s.BandIdx = idx
	s.PersonaID = ps.bands[idx].ID
	s.CandidateBand = idx
	s.TurnsInCandidate = 0
}
