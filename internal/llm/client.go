// Package llm wraps third-party chat-completion providers behind a single
// stateless client interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChatMessage is one entry of the message list sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the normalized generation request.
type Request struct {
	Messages []ChatMessage
}

// Response is the final provider output.
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// DeltaHandler receives streaming text fragments. Passing nil disables
// streaming.
type DeltaHandler func(delta string) error

// Client generates one assistant reply per call. Implementations hold no
// conversation state.
type Client interface {
	Generate(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
}

// ProviderError carries a user-presentable message alongside the underlying
// provider failure.
type ProviderError struct {
	Provider string
	Status   int
	Friendly string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// FriendlyMessage extracts the operator-facing message from an error chain,
// falling back to a generic one.
func FriendlyMessage(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Friendly != "" {
		return pe.Friendly
	}
	return "Det oppstod en teknisk feil. Prøv igjen senere."
}

// Config controls client construction.
type Config struct {
	Provider string

	MistralAPIKey  string
	MistralBaseURL string
	MistralModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// NewClient builds the provider client for the configured mode. "auto"
// prefers Mistral, then OpenAI, then the mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.MistralAPIKey) != "" {
			primary := newMistral(cfg)
			if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
				return NewFallbackClient(primary, newOpenAI(cfg)), nil
			}
			return primary, nil
		}
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return newOpenAI(cfg), nil
		}
		return NewMockClient(), nil
	case "mistral":
		if strings.TrimSpace(cfg.MistralAPIKey) == "" {
			return nil, errors.New("MISTRAL_API_KEY is required for mistral mode")
		}
		return newMistral(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai mode")
		}
		return newOpenAI(cfg), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newMistral(cfg Config) *HTTPClient {
	return NewHTTPClient(HTTPConfig{
		Provider:    "mistral",
		URL:         cfg.MistralBaseURL,
		APIKey:      cfg.MistralAPIKey,
		Model:       cfg.MistralModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
}

func newOpenAI(cfg Config) *HTTPClient {
	return NewHTTPClient(HTTPConfig{
		Provider:    "openai",
		URL:         cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	})
}
