// Package extract pulls typed intelligence artifacts out of raw message text.
//
// The extractor is a pure function: text in, artifacts out. It keeps no state,
// so re-running it over the same message always yields the same artifact set.
// Deduplication against previously seen values happens in the session and the
// global aggregation layer, keyed by (type, normalized value).
//
// Ambiguity between artifact types is resolved by a fixed precedence order:
// UPI > phone > bank account > keyword. A token consumed by a higher-priority
// type is masked out of the text before lower-priority scans run.
package extract

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/TryMightyAI/mirage/pkg/patterns"
)

// ArtifactType identifies the kind of intelligence an artifact carries.
type ArtifactType string

const (
	TypeUPI         ArtifactType = "upi"
	TypePhone       ArtifactType = "phone"
	TypeBankAccount ArtifactType = "bank_account"
	TypePhishingURL ArtifactType = "phishing_url"
	TypeKeyword     ArtifactType = "keyword"
	TypeScannedText ArtifactType = "scanned_text"
)

// AllTypes lists every artifact type in precedence order.
var AllTypes = []ArtifactType{
	TypeUPI, TypePhone, TypeBankAccount, TypePhishingURL, TypeKeyword, TypeScannedText,
}

// Artifact is an immutable piece of extracted intelligence.
type Artifact struct {
	Type        ArtifactType `json:"type"`
	Value       string       `json:"value"` // normalized
	SessionID   string       `json:"session_id,omitempty"`
	ExtractedAt time.Time    `json:"extracted_at"`
}

// Pre-compiled extraction patterns (compiled once, used per message).
var (
	// handle@provider - dots allowed in the provider suffix (e.g. @fakebank.com)
	reUPI = regexp.MustCompile(`[\w.\-]+@[\w.\-]+`)

	// Indian mobile numbers: optional +91/91 prefix, 10 digits starting 6-9.
	// RE2 has no lookarounds, so FromText checks the match span for adjacent
	// digits instead; a phone is never carved out of a longer digit run.
	rePhone = regexp.MustCompile(`(?:\+?91[\s\-]?)?[6-9]\d{9}`)
	reDigit = regexp.MustCompile(`\d`)

	// Bank accounts are 11-18 digit runs - long enough to not be phones.
	reBankAccount = regexp.MustCompile(`\b\d{11,18}\b`)

	// Keyword context that disambiguates a long digit run as a bank account.
	reAccountContext = regexp.MustCompile(`(?i)\b(account|acc(?:t)?|a/c|acct\s*no)\b`)

	// URL-shaped tokens: scheme and www optional, real TLD required below.
	reURL = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}(?:/[\w\-./?%&=]*)?`)

	reSeparators = regexp.MustCompile(`[\s\-+]`)
)

// upiProviders is the allowlist of known UPI handle suffixes. A candidate
// must contain one of these (or "bank") after the @ to count as a UPI ID,
// which keeps plain email addresses out of the artifact set.
var upiProviders = []string{
	"paytm", "phonepe", "googlepay", "ybl", "oksbi", "okhdfcbank",
	"okicici", "okaxis", "ibl", "axl", "upi", "pay", "wallet",
}

// commonTLDs accepted for phishing URL candidates. Anything longer than
// three characters outside this list is treated as a false positive
// (typically a UPI provider suffix).
var commonTLDs = map[string]bool{
	"com": true, "org": true, "net": true, "in": true,
	"io": true, "co": true, "gov": true, "edu": true,
	"xyz": true, "top": true, "app": true,
}

// Normalize canonicalizes an artifact value for deduplication:
// Unicode NFKC, lowercased, surrounding whitespace stripped.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(value)))
}

// FromText extracts every artifact present in a single message's text.
// Total function: empty text or no matches returns an empty slice, never nil.
func FromText(text string) []Artifact {
	now := time.Now()
	artifacts := make([]Artifact, 0, 4)
	seen := make(map[string]bool)

	add := func(t ArtifactType, value string) {
		key := string(t) + "\x00" + value
		if value == "" || seen[key] {
			return
		}
		seen[key] = true
		artifacts = append(artifacts, Artifact{Type: t, Value: value, ExtractedAt: now})
	}

	// UPI first - highest precedence. Matched spans are masked so the phone
	// scan does not re-claim the handle digits.
	remaining := text
	for _, m := range reUPI.FindAllString(text, -1) {
		if !isUPICandidate(m) {
			continue
		}
		add(TypeUPI, Normalize(m))
		remaining = strings.ReplaceAll(remaining, m, " ")
	}

	// Phones next. Normalized to bare 10 digits; masked before the bank scan
	// so a phone never doubles as an account fragment. A match touching an
	// adjacent digit sits inside a longer run and is left for the bank scan.
	buf := []byte(remaining)
	for _, loc := range rePhone.FindAllStringIndex(remaining, -1) {
		if loc[0] > 0 && isASCIIDigit(remaining[loc[0]-1]) {
			continue
		}
		if loc[1] < len(remaining) && isASCIIDigit(remaining[loc[1]]) {
			continue
		}
		clean := reSeparators.ReplaceAllString(remaining[loc[0]:loc[1]], "")
		if len(clean) == 12 && strings.HasPrefix(clean, "91") {
			clean = clean[2:]
		}
		if len(clean) != 10 || clean[0] < '6' || clean[0] > '9' {
			continue
		}
		add(TypePhone, clean)
		for i := loc[0]; i < loc[1]; i++ {
			buf[i] = ' '
		}
	}
	remaining = string(buf)

	// Bank accounts: long digit runs, only with "account" context nearby.
	if reAccountContext.MatchString(text) {
		for _, m := range reBankAccount.FindAllString(remaining, -1) {
			if allSameDigit(m) {
				continue
			}
			add(TypeBankAccount, m)
		}
	}

	// URL-shaped tokens, scanned after masking so a UPI provider suffix is
	// never re-claimed as a host. Candidates containing @ are email shaped
	// and skipped.
	for _, m := range reURL.FindAllString(remaining, -1) {
		if strings.Contains(m, "@") || len(m) < 8 {
			continue
		}
		if !hasKnownTLD(m) {
			continue
		}
		add(TypePhishingURL, Normalize(m))
	}

	// Suspicious keywords from the shared scam vocabulary.
	reg := patterns.Get()
	for _, p := range reg.MatchAll(text,
		patterns.CategoryUrgency, patterns.CategoryPaymentRequest, patterns.CategoryThreat,
		patterns.CategoryCustom) {
		add(TypeKeyword, p.Name)
	}

	return artifacts
}

// FromScannedText handles OCR output from the external vision collaborator.
// The raw text is preserved as a scanned_text artifact and also re-scanned
// for nested UPI/phone/URL matches.
func FromScannedText(ocrText string) []Artifact {
	if strings.TrimSpace(ocrText) == "" {
		return []Artifact{}
	}
	artifacts := FromText(ocrText)
	artifacts = append(artifacts, Artifact{
		Type:        TypeScannedText,
		Value:       strings.TrimSpace(ocrText),
		ExtractedAt: time.Now(),
	})
	return artifacts
}

// isUPICandidate reports whether handle@suffix looks like a real UPI ID
// rather than an email address.
func isUPICandidate(candidate string) bool {
	at := strings.LastIndex(candidate, "@")
	if at <= 0 || at == len(candidate)-1 {
		return false
	}
	handle := candidate[:at]
	provider := strings.ToLower(candidate[at+1:])
	if reDigit.FindString(handle) == "" && len(handle) < 3 {
		return false
	}
	if strings.Contains(provider, "bank") {
		return true
	}
	for _, p := range upiProviders {
		if strings.Contains(provider, p) {
			return true
		}
	}
	return false
}

func hasKnownTLD(candidate string) bool {
	host := candidate
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?"); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return false
	}
	tld := strings.ToLower(parts[len(parts)-1])
	return commonTLDs[tld] || len(tld) <= 3
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// MaskValue redacts the middle of a sensitive value for logging,
// e.g. "123456789012" -> "1234****9012".
func MaskValue(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****" + v[len(v)-4:]
}
