package reply

import (
	"context"
	"strings"
	"testing"
)

func TestDetectTopic(t *testing.T) {
	tests := []struct {
		message string
		want    Topic
	}{
		{"pay the processing fee first", TopicPayment},
		{"share the OTP you received", TopicOTP},
		{"click this link to verify", TopicLink},
		{"which bank do you use", TopicBank},
		{"hello, how are you", TopicGeneral},
	}
	for _, tt := range tests {
		if got := DetectTopic(tt.message); got != tt.want {
			t.Errorf("DetectTopic(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestDecideMode(t *testing.T) {
	if got := DecideMode(0.9, true); got != ModeExit {
		t.Errorf("Exiting turn should be EXIT, got %s", got)
	}
	if got := DecideMode(0.3, false); got != ModeDeflection {
		t.Errorf("Low confidence should deflect, got %s", got)
	}
	if got := DecideMode(0.8, false); got != ModeNormal {
		t.Errorf("High confidence should play along, got %s", got)
	}
}

func TestFallbackLine(t *testing.T) {
	if line := FallbackLine("confused_user"); line == "" {
		t.Error("Known persona should have a fallback line")
	}
	if line := FallbackLine("no_such_persona"); line == "" {
		t.Error("Unknown persona should still get a generic line")
	}
}

func TestReply_ProviderNoneUsesFallback(t *testing.T) {
	s := NewSynthesizer(Config{Provider: ProviderNone})

	got := s.Reply(context.Background(), Context{
		PersonaID:   "busy_professional",
		LastMessage: "pay now",
	})
	if got != FallbackLine("busy_professional") {
		t.Errorf("Provider none should return the persona fallback, got %q", got)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Context{
		Descriptor:  "pressed for time",
		LastMessage: "send the fee now",
	}, TopicPayment, ModeNormal)

	if !strings.Contains(prompt, "pressed for time") {
		t.Error("Prompt should carry the persona descriptor")
	}
	if !strings.Contains(prompt, string(TopicPayment)) {
		t.Error("Prompt should carry the detected topic")
	}
	if strings.Contains(strings.ToLower(prompt), "accuse") == false {
		t.Error("Prompt should instruct against accusing")
	}
}

func TestIsTransient(t *testing.T) {
	transient := []string{
		"llm status 429: rate limited",
		"llm status 500: boom",
		"connection refused",
		"request timeout",
	}
	for _, msg := range transient {
		if !isTransient(errorString(msg)) {
			t.Errorf("Expected %q to be transient", msg)
		}
	}
	if isTransient(errorString("llm status 401: bad key")) {
		t.Error("Auth failure should not be transient")
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
