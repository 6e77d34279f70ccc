package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSystemPrompt is the baseline support-agent instruction set. It can
// be replaced entirely via LLM_SYSTEM_PROMPT.
const DefaultSystemPrompt = `Du er en kundeserviceagent for AI Labben, en AI- og teknologi-løsningsleverandør. Du hjelper kunder med spørsmål om AI-teknologi, chatbot-løsninger og digitale tjenester.

Retningslinjer for svar:
- Svar kort og presist, men ta med all viktig informasjon.
- Vær hyggelig og profesjonell, bruk et vennlig tonefall.
- Ikke hallusiner: hvis du ikke vet svaret, si at en kollega vil ta kontakt.
- Still konkrete oppfølgingsspørsmål hvis kunden ikke gir nok detaljer.`

// DefaultContactPromptMessage is shown together with the contact form.
const DefaultContactPromptMessage = "Jeg gleder meg til å fortsette denne samtalen, men først trenger jeg at du fyller ut infoen under 😊"

// Config contains all runtime settings for the chat-widget backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	AllowedOrigins []string

	SessionInactivityTimeout time.Duration
	SessionSweepInterval     time.Duration
	ContactPromptThreshold   int
	ContactPromptMessage     string

	MaxMessageLength   int
	RateLimitPerMinute int

	LLMProvider    string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float64
	SystemPrompt   string

	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	CustomerID         string
	CustomerName       string
	WidgetSubtitle     string
	WidgetPrimaryColor string
	WelcomeTitle       string
	WelcomeText        string

	ProactiveChatEnabled bool
	ProactiveChatDelay   time.Duration
	ProactiveChatMessage string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "chatwidget"),
		// The widget is embedded on customer sites, so cross-origin POSTs are
		// the normal case.
		AllowAnyOrigin:           true,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		SessionSweepInterval:     5 * time.Minute,
		ContactPromptThreshold:   1,
		ContactPromptMessage:     envOrDefault("APP_CONTACT_PROMPT_MESSAGE", DefaultContactPromptMessage),
		MaxMessageLength:         2000,
		RateLimitPerMinute:       20,
		LLMProvider:              envOrDefault("LLM_PROVIDER", "auto"),
		LLMTimeout:               60 * time.Second,
		LLMMaxTokens:             1200,
		LLMTemperature:           0.7,
		SystemPrompt:             envOrDefault("LLM_SYSTEM_PROMPT", DefaultSystemPrompt),
		MistralAPIKey:            trimmedEnv("MISTRAL_API_KEY"),
		MistralBaseURL:           envOrDefault("MISTRAL_BASE_URL", "https://api.mistral.ai/v1/chat/completions"),
		MistralModel:             envOrDefault("MISTRAL_MODEL", "mistral-large-latest"),
		OpenAIAPIKey:             trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:            envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:              envOrDefault("OPENAI_MODEL", "gpt-4o"),
		CustomerID:               trimmedEnv("CUSTOMER_ID"),
		CustomerName:             envOrDefault("CUSTOMER_NAME", "AI Labben"),
		WidgetSubtitle:           envOrDefault("WIDGET_SUBTITLE", "Vi hjelper deg gjerne!"),
		WidgetPrimaryColor:       envOrDefault("WIDGET_PRIMARY_COLOR", "#429D0A"),
		WelcomeTitle:             trimmedEnv("WIDGET_WELCOME_TITLE"),
		WelcomeText:              envOrDefault("WIDGET_WELCOME_TEXT", "Jeg er her for å hjelpe deg med dine spørsmål."),
		ProactiveChatEnabled:     false,
		ProactiveChatDelay:       5 * time.Second,
		ProactiveChatMessage:     trimmedEnv("PROACTIVE_CHAT_MESSAGE"),
		DatabaseURL:              trimmedEnv("DATABASE_URL"),
	}

	if origins := trimmedEnv("APP_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
		// An explicit allowlist turns the permissive default off.
		cfg.AllowAnyOrigin = false
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionSweepInterval, err = durationFromEnv("APP_SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_REQUEST_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProactiveChatDelay, err = durationFromEnv("PROACTIVE_CHAT_DELAY", cfg.ProactiveChatDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ContactPromptThreshold, err = intFromEnv("APP_CONTACT_PROMPT_THRESHOLD", cfg.ContactPromptThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageLength, err = intFromEnv("APP_MAX_MESSAGE_LENGTH", cfg.MaxMessageLength)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitPerMinute, err = intFromEnv("APP_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ProactiveChatEnabled, err = boolFromEnv("PROACTIVE_CHAT_ENABLED", cfg.ProactiveChatEnabled)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SESSION_SWEEP_INTERVAL must be positive")
	}
	if cfg.ContactPromptThreshold < 1 {
		return Config{}, fmt.Errorf("APP_CONTACT_PROMPT_THRESHOLD must be at least 1")
	}
	if cfg.MaxMessageLength <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_MESSAGE_LENGTH must be positive")
	}
	if cfg.RateLimitPerMinute < 0 {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return Config{}, fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}

	if cfg.WelcomeTitle == "" {
		cfg.WelcomeTitle = fmt.Sprintf("Velkommen til %s!", cfg.CustomerName)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
