package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMProvider defines the backend LLM service for reply synthesis
type LLMProvider string

const (
	ProviderNone       LLMProvider = "none"       // No LLM, fallback lines only
	ProviderOllama     LLMProvider = "ollama"     // Local Ollama server
	ProviderOpenRouter LLMProvider = "openrouter" // OpenRouter (default, has free tier)
	ProviderGroq       LLMProvider = "groq"       // Groq (high-speed inference)
)

// Config holds global settings for the Mirage engagement engine
// All settings can be configured via environment variables or programmatically
type Config struct {
	// === Core Settings ===
	ListenAddr string // HTTP listen address (default: ":8090")

	// === Detection Thresholds (0.0 - 1.0) ===
	// Tune these to balance engagement rate vs. false engagement
	EngageThreshold float64 // Confidence above this = engage the persona (default: 0.20)
	DecayFactor     float64 // Weight of prior confidence in the running estimate (default: 0.25)

	// === Signal Weights ===
	UrgencyWeight    float64 // Weight of urgency cues (default: 0.35)
	PaymentWeight    float64 // Weight of payment demands (default: 0.35)
	ThreatWeight     float64 // Weight of threat language (default: 0.30)
	RepetitionWeight float64 // Weight of near-duplicate pressure (default: 0.20)

	// === Persona Switching ===
	PersonaFile string  // Optional YAML file overriding the built-in persona table
	JumpMargin  float64 // Confidence delta that bypasses the persona hold (default: 0.15)
	HoldTurns   int     // Turns a new band must persist before switching (default: 2)

	// === Escalation ===
	EscalationTurns int     // Consecutive rising-urgency turns before the aggression bump (default: 3)
	EscalationBump  float64 // Confidence bump applied at the escalation crossing (default: 0.15)

	// === Exit Policy ===
	StaleTurnLimit int           // Turns without a new artifact type before intel is complete (default: 4)
	MinIntelTypes  int           // Distinct artifact types that count as complete intel (default: 2)
	TurnCeiling    int           // Hard cap on scammer turns per session (default: 20)
	SilenceTimeout time.Duration // Scammer silence that ends the session (default: 10 minutes)

	// === Session Management ===
	SessionTTL  time.Duration // Idle session eviction age (default: 1 hour)
	MaxMessages int           // Sliding transcript window per session (default: 30)

	// === Event Delivery ===
	WebhookURL       string        // Downstream webhook for intel events (empty = disabled)
	EventQueueSize   int           // Bounded dispatch queue size (default: 256)
	EventMaxAttempts int           // Delivery attempts per event (default: 3)
	EventBackoff     time.Duration // Base backoff between delivery attempts (default: 500ms)

	// === External Stores ===
	RedisAddr   string // Redis address for the shared intel view (empty = in-memory)
	PostgresDSN string // Postgres DSN for session report archiving (empty = disabled)

	// === Feature Flags ===
	EnableSemantics bool   // Enable embedding similarity against known scripts (requires Ollama)
	OllamaURL       string // Ollama base URL for embeddings (default: http://localhost:11434)

	// === Reply Synthesis (LLM Collaborator) ===
	EnableReplies bool        // Synthesize persona replies at the gateway (default: true)
	LLMProvider   LLMProvider // Which LLM service to use: "openrouter", "groq", "ollama", "none"
	LLMAPIKey     string      // API key for cloud providers (env: MIRAGE_LLM_API_KEY or provider-specific)
	LLMModel      string      // Model identifier (e.g., "nvidia/nemotron-3-nano-30b-a3b:free")
	LLMBaseURL    string      // Custom base URL for self-hosted providers

	// === Vocabulary ===
	ExtraKeywords []string // Additional keyword artifacts to flag (env: MIRAGE_EXTRA_KEYWORDS, comma-separated)
}

// NewDefaultConfig creates a Config with sensible defaults
// All settings can be overridden via environment variables
func NewDefaultConfig() *Config {
	cfg := &Config{
		// Core
		ListenAddr: GetEnv("MIRAGE_LISTEN_ADDR", ":8090"),

		// Thresholds
		EngageThreshold: GetEnvFloat("MIRAGE_ENGAGE_THRESHOLD", 0.20),
		DecayFactor:     clampFloat(GetEnvFloat("MIRAGE_DECAY_FACTOR", 0.25), 0, 1),

		// Signal weights
		UrgencyWeight:    GetEnvFloat("MIRAGE_URGENCY_WEIGHT", 0.35),
		PaymentWeight:    GetEnvFloat("MIRAGE_PAYMENT_WEIGHT", 0.35),
		ThreatWeight:     GetEnvFloat("MIRAGE_THREAT_WEIGHT", 0.30),
		RepetitionWeight: GetEnvFloat("MIRAGE_REPETITION_WEIGHT", 0.20),

		// Persona switching
		PersonaFile: GetEnv("MIRAGE_PERSONA_FILE", ""),
		JumpMargin:  GetEnvFloat("MIRAGE_JUMP_MARGIN", 0.15),
		HoldTurns:   clampInt(GetEnvInt("MIRAGE_HOLD_TURNS", 2), 1, 10),

		// Escalation
		EscalationTurns: clampInt(GetEnvInt("MIRAGE_ESCALATION_TURNS", 3), 2, 10),
		EscalationBump:  GetEnvFloat("MIRAGE_ESCALATION_BUMP", 0.15),

		// Exit policy
		StaleTurnLimit: clampInt(GetEnvInt("MIRAGE_STALE_TURN_LIMIT", 4), 1, 100),
		MinIntelTypes:  clampInt(GetEnvInt("MIRAGE_MIN_INTEL_TYPES", 2), 1, 10),
		TurnCeiling:    clampInt(GetEnvInt("MIRAGE_TURN_CEILING", 20), 1, 1000),
		SilenceTimeout: time.Duration(GetEnvInt("MIRAGE_SILENCE_TIMEOUT_SECONDS", 600)) * time.Second,

		// Sessions
		SessionTTL:  time.Duration(GetEnvInt("MIRAGE_SESSION_TTL_SECONDS", 3600)) * time.Second,
		MaxMessages: clampInt(GetEnvInt("MIRAGE_MAX_MESSAGES", 30), 2, 1000),

		// Events
		WebhookURL:       GetEnv("MIRAGE_WEBHOOK_URL", ""),
		EventQueueSize:   clampInt(GetEnvInt("MIRAGE_EVENT_QUEUE_SIZE", 256), 1, 65536),
		EventMaxAttempts: clampInt(GetEnvInt("MIRAGE_EVENT_MAX_ATTEMPTS", 3), 1, 10),
		EventBackoff:     time.Duration(GetEnvInt("MIRAGE_EVENT_BACKOFF_MS", 500)) * time.Millisecond,

		// External stores
		RedisAddr:   GetEnv("MIRAGE_REDIS_ADDR", ""),
		PostgresDSN: GetEnv("MIRAGE_POSTGRES_DSN", ""),

		// Feature flags
		EnableSemantics: GetEnvBool("MIRAGE_ENABLE_SEMANTICS", false),
		OllamaURL:       GetEnv("MIRAGE_OLLAMA_URL", "http://localhost:11434"),

		// Reply synthesis
		EnableReplies: GetEnvBool("MIRAGE_ENABLE_REPLIES", true),
		LLMProvider:   detectLLMProvider(),
		LLMAPIKey:     GetEnv("MIRAGE_LLM_API_KEY", GetEnv("GROQ_API_KEY", os.Getenv("OPENROUTER_API_KEY"))),
		LLMModel:      GetEnv("MIRAGE_LLM_MODEL", "nvidia/nemotron-3-nano-30b-a3b:free"),
		LLMBaseURL:    GetEnv("MIRAGE_LLM_BASE_URL", ""),

		// Vocabulary
		ExtraKeywords: GetEnvSlice("MIRAGE_EXTRA_KEYWORDS", nil),
	}

	return cfg
}

// NewLocalConfig creates a Config optimized for local-only operation (no API calls)
// Use this for development, air-gapped environments, or privacy-first deployments
func NewLocalConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.LLMProvider = ProviderOllama
	cfg.LLMBaseURL = "http://localhost:11434/v1"
	cfg.LLMModel = "qwen2.5:7b" // Good local model
	cfg.LLMAPIKey = ""          // Not needed for Ollama
	cfg.EnableSemantics = true
	return cfg
}

// NewAggressiveConfig creates a Config that engages earlier and holds longer
// (higher waste-their-time yield, more false engagements)
func NewAggressiveConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EngageThreshold = 0.10
	cfg.TurnCeiling = 40
	cfg.StaleTurnLimit = 6
	return cfg
}

// NewConservativeConfig creates a Config that minimizes false engagement
func NewConservativeConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EngageThreshold = 0.35
	cfg.TurnCeiling = 12
	return cfg
}

func detectLLMProvider() LLMProvider {
	// Check explicit provider setting first
	if p := os.Getenv("MIRAGE_LLM_PROVIDER"); p != "" {
		return LLMProvider(p)
	}
	// Auto-detect based on available keys
	if os.Getenv("GROQ_API_KEY") != "" {
		return ProviderGroq
	}
	if os.Getenv("OPENROUTER_API_KEY") != "" || os.Getenv("MIRAGE_LLM_API_KEY") != "" {
		return ProviderOpenRouter
	}
	// Default to Ollama (local) if no cloud keys found
	return ProviderOllama
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func clampFloat(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing
// These are exported for use by other packages

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.EngageThreshold < 0 || c.EngageThreshold > 1 {
		problems = append(problems, "MIRAGE_ENGAGE_THRESHOLD must be in [0,1]")
	}
	if c.DecayFactor < 0 || c.DecayFactor >= 1 {
		problems = append(problems, "MIRAGE_DECAY_FACTOR must be in [0,1)")
	}
	if c.JumpMargin <= 0 || c.JumpMargin > 1 {
		problems = append(problems, "MIRAGE_JUMP_MARGIN must be in (0,1]")
	}
	if c.EscalationBump < 0 || c.EscalationBump > 1 {
		problems = append(problems, "MIRAGE_ESCALATION_BUMP must be in [0,1]")
	}
	for _, w := range []float64{c.UrgencyWeight, c.PaymentWeight, c.ThreatWeight, c.RepetitionWeight} {
		if w < 0 || w > 1 {
			problems = append(problems, "signal weights must each be in [0,1]")
			break
		}
	}
	if c.WebhookURL != "" && !strings.HasPrefix(c.WebhookURL, "http://") && !strings.HasPrefix(c.WebhookURL, "https://") {
		problems = append(problems, "MIRAGE_WEBHOOK_URL must be an http(s) URL")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MustValidate calls Validate and fatally exits if validation fails.
// Call this at startup before starting the server.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[STARTUP] FATAL: Configuration validation failed: %v", err)
	}
	log.Println("[STARTUP] Configuration validated successfully")
}
