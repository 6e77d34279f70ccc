package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ailabben/chatwidget/internal/reliability"
)

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
// Both Mistral and OpenAI speak this wire shape.
type HTTPClient struct {
	provider    string
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	maxRetries  int
	backoffBase time.Duration
}

type HTTPConfig struct {
	Provider    string
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &HTTPClient{
		provider:    cfg.Provider,
		url:         strings.TrimSpace(cfg.URL),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		maxRetries:  2,
		backoffBase: 250 * time.Millisecond,
	}
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) Generate(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &ProviderError{
			Provider: c.provider,
			Friendly: "API-nøkkel er ugyldig. Kontakt administrator.",
			Err:      errors.New("api key not configured"),
		}
	}

	payload, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      onDelta != nil,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, c.backoffBase, 2*time.Second)
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, retryable, err := c.attempt(ctx, payload, onDelta)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	return Response{}, lastErr
}

func (c *HTTPClient) attempt(ctx context.Context, payload []byte, onDelta DeltaHandler) (Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, true, &ProviderError{
			Provider: c.provider,
			Friendly: "Det oppstod en teknisk feil. Prøv igjen senere.",
			Err:      fmt.Errorf("send request: %w", err),
		}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, reliability.IsRetryableHTTPStatus(res.StatusCode), &ProviderError{
			Provider: c.provider,
			Status:   res.StatusCode,
			Friendly: friendlyStatusMessage(res.StatusCode),
			Err:      fmt.Errorf("%s api status %d: %s", c.provider, res.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if onDelta != nil {
		return c.consumeStream(res.Body, onDelta)
	}

	var parsed completionResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return Response{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, false, &ProviderError{
			Provider: c.provider,
			Friendly: "Beklager, jeg kunne ikke generere et svar.",
			Err:      errors.New("empty choices in response"),
		}
	}
	return Response{
		Text:       strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:      c.model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, false, nil
}

// consumeStream reads a server-sent-event body, forwarding delta fragments
// as they arrive.
func (c *HTTPClient) consumeStream(body io.Reader, onDelta DeltaHandler) (Response, bool, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk completionResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return Response{}, false, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Response{}, false, fmt.Errorf("stream read: %w", err)
	}

	return Response{Text: strings.TrimSpace(out.String()), Model: c.model}, false, nil
}

func friendlyStatusMessage(status int) string {
	switch status {
	case 401:
		return "API-nøkkel er ugyldig. Kontakt administrator."
	case 402:
		return "API-kvoten er oppbrukt. Kontakt administrator."
	case 429:
		return "For mange forespørsler. Prøv igjen om litt."
	default:
		return "Det oppstod en teknisk feil. Prøv igjen senere."
	}
}
