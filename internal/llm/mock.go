package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no provider is
// configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text, Model: "mock"}, nil
}

func buildMockReply(req Request) string {
	var lastUser string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if lastUser == "" {
		return "Hei! Hva kan jeg hjelpe deg med?"
	}
	return fmt.Sprintf("Takk for meldingen! Du spurte: %s", lastUser)
}
