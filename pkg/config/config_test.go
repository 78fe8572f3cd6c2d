package config

import (
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.EngageThreshold != 0.20 {
		t.Errorf("EngageThreshold = %v, want 0.20", cfg.EngageThreshold)
	}
	if cfg.DecayFactor != 0.25 {
		t.Errorf("DecayFactor = %v, want 0.25", cfg.DecayFactor)
	}
	if cfg.TurnCeiling != 20 {
		t.Errorf("TurnCeiling = %d, want 20", cfg.TurnCeiling)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("SessionTTL = %v, want 1h", cfg.SessionTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MIRAGE_ENGAGE_THRESHOLD", "0.35")
	t.Setenv("MIRAGE_TURN_CEILING", "12")
	t.Setenv("MIRAGE_MIN_INTEL_TYPES", "3")
	t.Setenv("MIRAGE_SILENCE_TIMEOUT_SECONDS", "120")
	t.Setenv("MIRAGE_EXTRA_KEYWORDS", "gift card, crypto ,")

	cfg := NewDefaultConfig()
	if cfg.EngageThreshold != 0.35 {
		t.Errorf("EngageThreshold = %v, want 0.35", cfg.EngageThreshold)
	}
	if cfg.TurnCeiling != 12 {
		t.Errorf("TurnCeiling = %d, want 12", cfg.TurnCeiling)
	}
	if cfg.MinIntelTypes != 3 {
		t.Errorf("MinIntelTypes = %d, want 3", cfg.MinIntelTypes)
	}
	if cfg.SilenceTimeout != 2*time.Minute {
		t.Errorf("SilenceTimeout = %v, want 2m", cfg.SilenceTimeout)
	}
	if len(cfg.ExtraKeywords) != 2 || cfg.ExtraKeywords[0] != "gift card" || cfg.ExtraKeywords[1] != "crypto" {
		t.Errorf("ExtraKeywords = %v", cfg.ExtraKeywords)
	}
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("MIRAGE_TEST_INT", "not-a-number")
	t.Setenv("MIRAGE_TEST_FLOAT", "nope")
	t.Setenv("MIRAGE_TEST_BOOL", "maybe")

	if got := GetEnvInt("MIRAGE_TEST_INT", 7); got != 7 {
		t.Errorf("GetEnvInt fallback = %d, want 7", got)
	}
	if got := GetEnvFloat("MIRAGE_TEST_FLOAT", 0.5); got != 0.5 {
		t.Errorf("GetEnvFloat fallback = %v, want 0.5", got)
	}
	if got := GetEnvBool("MIRAGE_TEST_BOOL", true); got != true {
		t.Errorf("GetEnvBool fallback = %v, want true", got)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.EngageThreshold = 1.5 }},
		{"decay at one", func(c *Config) { c.DecayFactor = 1.0 }},
		{"zero jump margin", func(c *Config) { c.JumpMargin = 0 }},
		{"negative weight", func(c *Config) { c.ThreatWeight = -0.1 }},
		{"non-http webhook", func(c *Config) { c.WebhookURL = "ftp://host/hook" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestPresetConfigs(t *testing.T) {
	local := NewLocalConfig()
	if local.LLMProvider != ProviderOllama || local.LLMAPIKey != "" {
		t.Errorf("Local config should target Ollama without a key: %+v", local)
	}

	aggressive := NewAggressiveConfig()
	conservative := NewConservativeConfig()
	if aggressive.EngageThreshold >= conservative.EngageThreshold {
		t.Error("Aggressive preset should engage earlier than conservative")
	}
	if aggressive.TurnCeiling <= conservative.TurnCeiling {
		t.Error("Aggressive preset should hold sessions longer")
	}
}
