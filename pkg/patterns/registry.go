// Package patterns provides a centralized, high-performance pattern registry
// for scam detection. All regex patterns are compiled once at package init
// and shared across the signal scorer, category classifier, and extractor.
//
// Design principles:
// - COMPILE ONCE: All patterns compiled at init, not per-message
// - DRY: Single source of truth for all scam vocabulary
// - CATEGORIZED: Patterns organized by signal category for targeted scans
// - EXTENSIBLE: Easy to add new patterns without touching engine code
package patterns

import (
	"regexp"
	"sync"
)

// Category represents a scam pattern category
type Category string

const (
	// Signal categories (per-turn scoring)
	CategoryUrgency        Category = "urgency"
	CategoryPaymentRequest Category = "payment_request"
	CategoryThreat         Category = "threat"
	CategoryTermination    Category = "termination"

	// Scam classification categories (session-level)
	CategoryBanking     Category = "banking"
	CategoryTechSupport Category = "tech_support"
	CategoryPrize       Category = "prize_lottery"
	CategoryRomance     Category = "romance"
	CategoryJobOffer    Category = "job_offer"

	// Deployment-supplied keyword artifacts
	CategoryCustom Category = "custom"
)

// Pattern holds a compiled regex with metadata
type Pattern struct {
	Name        string         // Human-readable name for logging
	Regex       *regexp.Regexp // Compiled regex (never nil after init)
	Category    Category       // Signal or classification category
	Severity    int            // Score contribution (0-100)
	Description string         // What this pattern detects
}

// Registry holds all compiled patterns, organized by category
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

// global singleton - initialized once at package load
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global pattern registry (singleton)
// Thread-safe and guaranteed to be initialized
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

// newRegistry creates and populates the pattern registry
func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 128),
	}

	r.registerUrgencyPatterns()
	r.registerPaymentRequestPatterns()
	r.registerThreatPatterns()
	r.registerTerminationPatterns()
	r.registerScamCategoryPatterns()

	return r
}

// register adds a pattern to the registry (internal use only)
func (r *Registry) register(name string, pattern string, category Category, severity int, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Severity:    severity,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// RegisterKeywords adds deployment-supplied keywords as case-insensitive
// whole-word patterns under CategoryCustom. Safe to call after init; the
// extractor picks them up on the next scan.
func (r *Registry) RegisterKeywords(words []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range words {
		if w == "" {
			continue
		}
		r.register("custom_"+w, `(?i)\b`+regexp.QuoteMeta(w)+`\b`, CategoryCustom, 40, "deployment-supplied keyword")
	}
}

// GetByCategory returns all patterns for a specific category
// Returns empty slice if category not found (never nil)
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if patterns, ok := r.byCategory[cat]; ok {
		return patterns
	}
	return []*Pattern{}
}

// MatchAny checks if text matches any pattern in the given categories
// Returns the first matching pattern or nil
// This is optimized for early exit on first match
func (r *Registry) MatchAny(text string, cats ...Category) *Pattern {
	for _, cat := range cats {
		for _, p := range r.GetByCategory(cat) {
			if p.Regex.MatchString(text) {
				return p
			}
		}
	}
	return nil
}

// MatchAll returns all patterns that match the text in given categories
// Use when you need to know ALL matches (for comprehensive scoring)
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	var matches []*Pattern
	for _, cat := range cats {
		for _, p := range r.GetByCategory(cat) {
			if p.Regex.MatchString(text) {
				matches = append(matches, p)
			}
		}
	}
	return matches
}

// CategoryScore sums the severity of all matching patterns in a category.
// Used by the scam-category classifier to rank competing classifications.
func (r *Registry) CategoryScore(text string, cat Category) int {
	score := 0
	for _, p := range r.GetByCategory(cat) {
		if p.Regex.MatchString(text) {
			score += p.Severity
		}
	}
	return score
}

// TotalPatterns returns the total count of registered patterns
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of patterns in a category
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
