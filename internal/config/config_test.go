package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionInactivityTimeout != 2*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 2m", cfg.SessionInactivityTimeout)
	}
	if cfg.SessionSweepInterval != 5*time.Minute {
		t.Fatalf("SessionSweepInterval = %v, want 5m", cfg.SessionSweepInterval)
	}
	if cfg.ContactPromptThreshold != 1 {
		t.Fatalf("ContactPromptThreshold = %d, want 1", cfg.ContactPromptThreshold)
	}
	if cfg.MaxMessageLength != 2000 {
		t.Fatalf("MaxMessageLength = %d, want 2000", cfg.MaxMessageLength)
	}
	if cfg.RateLimitPerMinute != 20 {
		t.Fatalf("RateLimitPerMinute = %d, want 20", cfg.RateLimitPerMinute)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true by default")
	}
	if cfg.LLMProvider != "auto" {
		t.Fatalf("LLMProvider = %q, want auto", cfg.LLMProvider)
	}
	if cfg.SystemPrompt == "" || cfg.ContactPromptMessage == "" {
		t.Fatalf("prompts must have defaults")
	}
	if cfg.WelcomeTitle == "" {
		t.Fatalf("WelcomeTitle should default from customer name")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_BIND_ADDR", "127.0.0.1:9999")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "45s")
	t.Setenv("APP_CONTACT_PROMPT_THRESHOLD", "3")
	t.Setenv("APP_RATE_LIMIT_PER_MINUTE", "0")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_PROVIDER", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:9999" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.SessionInactivityTimeout != 45*time.Second {
		t.Fatalf("SessionInactivityTimeout = %v, want 45s", cfg.SessionInactivityTimeout)
	}
	if cfg.ContactPromptThreshold != 3 {
		t.Fatalf("ContactPromptThreshold = %d, want 3", cfg.ContactPromptThreshold)
	}
	if cfg.RateLimitPerMinute != 0 {
		t.Fatalf("RateLimitPerMinute = %d, want 0 (disabled)", cfg.RateLimitPerMinute)
	}
	if cfg.LLMTemperature != 0.2 {
		t.Fatalf("LLMTemperature = %v, want 0.2", cfg.LLMTemperature)
	}
	if cfg.LLMProvider != "mock" {
		t.Fatalf("LLMProvider = %q, want mock", cfg.LLMProvider)
	}
}

func TestLoadAllowedOriginsDisablesWildcard(t *testing.T) {
	t.Setenv("APP_ALLOWED_ORIGINS", "https://kunde.no, https://www.kunde.no")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false with explicit allowlist")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.AllowedOrigins[1] != "https://www.kunde.no" {
		t.Fatalf("AllowedOrigins[1] = %q, want trimmed origin", cfg.AllowedOrigins[1])
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"APP_CONTACT_PROMPT_THRESHOLD":   "0",
		"APP_MAX_MESSAGE_LENGTH":         "-1",
		"LLM_TEMPERATURE":                "3.5",
		"LLM_MAX_TOKENS":                 "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s succeeded, want error", key, value)
			}
		})
	}
}

func TestLoadParseErrors(t *testing.T) {
	t.Setenv("APP_SESSION_SWEEP_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with invalid duration succeeded, want error")
	}
}
