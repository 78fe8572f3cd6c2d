// Package reply talks to the external LLM collaborator that writes the
// persona's outbound messages. The core treats the returned text as opaque;
// when the collaborator is down or misconfigured the synthesizer degrades
// to a persona-appropriate canned line instead of failing the request.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/TryMightyAI/mirage/pkg/httputil"
)

// Provider defines the backend LLM service type.
type Provider string

const (
	ProviderNone       Provider = "none" // no LLM, fallback lines only
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
	ProviderOllama     Provider = "ollama"
)

// Topic labels what the scammer is currently pushing, steering the prompt.
type Topic string

const (
	TopicPayment Topic = "PAYMENT"
	TopicOTP     Topic = "OTP"
	TopicLink    Topic = "LINK"
	TopicBank    Topic = "BANK"
	TopicGeneral Topic = "GENERAL"
)

// Mode shapes how forthcoming the persona acts this turn.
type Mode string

const (
	ModeExit       Mode = "EXIT"       // wind the conversation down
	ModeDeflection Mode = "DEFLECTION" // stall, ask clarifying questions
	ModeNormal     Mode = "NORMAL"     // play along
)

// Context is everything the collaborator needs for one reply.
type Context struct {
	PersonaID   string
	Descriptor  string // persona behavioral descriptor
	Category    string // scam category label
	LastMessage string // most recent scammer message
	Confidence  float64
	Exiting     bool
}

// Synthesizer is the reply collaborator client.
type Synthesizer struct {
	client      *http.Client
	provider    Provider
	baseURL     string
	apiKey      string
	model       string
	temperature float64
}

// Config holds synthesizer settings.
type Config struct {
	Provider Provider
	APIKey   string // optional for Ollama
	Model    string
	BaseURL  string // optional override
}

// NewSynthesizer creates a reply collaborator client.
func NewSynthesizer(cfg Config) *Synthesizer {
	if cfg.Model == "" {
		if cfg.Provider == ProviderOllama {
			cfg.Model = "qwen2.5:7b"
		} else {
			cfg.Model = "nvidia/nemotron-3-nano-30b-a3b:free"
		}
	}

	var baseURL string
	switch cfg.Provider {
	case ProviderOllama:
		baseURL = "http://localhost:11434/v1"
	case ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	default:
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	return &Synthesizer{
		client:      httputil.SlowClient(),
		provider:    cfg.Provider,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: 0.4,
	}
}

// DetectTopic labels what the scammer is pushing in this message.
func DetectTopic(message string) Topic {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "fee") || strings.Contains(msg, "payment") || strings.Contains(msg, "pay"):
		return TopicPayment
	case strings.Contains(msg, "otp"):
		return TopicOTP
	case strings.Contains(msg, "link") || strings.Contains(msg, "click"):
		return TopicLink
	case strings.Contains(msg, "bank") || strings.Contains(msg, "upi"):
		return TopicBank
	default:
		return TopicGeneral
	}
}

// DecideMode picks the behavior mode for this turn. Low-confidence turns
// deflect rather than commit; exits always use the exit mode.
func DecideMode(confidence float64, exiting bool) Mode {
	if exiting {
		return ModeExit
	}
	if confidence < 0.5 {
		return ModeDeflection
	}
	return ModeNormal
}

// Reply synthesizes one persona reply. Never returns an error: collaborator
// failure degrades to the persona fallback line.
func (s *Synthesizer) Reply(ctx context.Context, rc Context) string {
	if s.provider == ProviderNone {
		return FallbackLine(rc.PersonaID)
	}

	topic := DetectTopic(rc.LastMessage)
	mode := DecideMode(rc.Confidence, rc.Exiting)
	prompt := buildPrompt(rc, topic, mode)

	// Up to 3 attempts for rate limits and connection drops.
	for attempt := 0; attempt < 3; attempt++ {
		text, err := s.complete(ctx, prompt)
		if err == nil && text != "" {
			return text
		}
		if err != nil && !isTransient(err) {
			log.Printf("[WARN] reply synthesis failed: %v", err)
			break
		}
		select {
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		case <-ctx.Done():
			return FallbackLine(rc.PersonaID)
		}
	}
	return FallbackLine(rc.PersonaID)
}

// buildPrompt constructs the controlled prompt: the persona never knows it
// is talking to a scammer, never accuses, and answers in character.
func buildPrompt(rc Context, topic Topic, mode Mode) string {
	return fmt.Sprintf(`You are a real human user chatting with a service agent.
You do NOT know this is a scam.

Your character: %s
Conversation topic: %s
Behavior mode: %s

Rules:
- Stay strictly on the topic.
- Sound natural and human, in character.
- Ask relevant clarification or show minor difficulty.
- Do NOT accuse or mention scam.
- Keep the reply under 2 short sentences.

Their message:
%q

Write ONE reply only.`, rc.Descriptor, topic, mode, rc.LastMessage)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *Synthesizer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       s.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode >= 400 {
		msg, _ := httputil.ReadErrorBody(resp.Body)
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, string(msg))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "status 5")
}

// fallbackLines keep the conversation alive in character when the
// collaborator is unavailable.
var fallbackLines = map[string]string{
	"confused_user":     "Sorry, I am not understanding... can you tell me again slowly?",
	"busy_professional": "In a meeting right now - can you send that again in one line?",
	"curious_student":   "Wait, how does that work exactly? Can you explain once more?",
	"nervous_elder":     "Oh my, I didn't follow that. Could you please repeat it?",
	"over_polite":       "So sorry, I seem to have missed that. Would you kindly say it again?",
	"paranoid_user":     "Who is this again? I'm not sure what you're asking me.",
	"tech_savvy":        "That didn't come through properly. Resend with the reference number please.",
}

// FallbackLine returns the canned in-character line for a persona.
func FallbackLine(personaID string) string {
	if line, ok := fallbackLines[personaID]; ok {
		return line
	}
	return "I'm having trouble understanding. Can you repeat that?"
}
