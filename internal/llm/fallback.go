package llm

import (
	"context"
	"errors"
	"fmt"
)

// FallbackClient attempts a primary client first and falls back on error.
// Cancellation is never masked by a fallback attempt.
type FallbackClient struct {
	primary  Client
	fallback Client
}

func NewFallbackClient(primary, fallback Client) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

func (c *FallbackClient) Generate(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	resp, err := c.primary.Generate(ctx, req, onDelta)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}
	if c.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Generate(ctx, req, onDelta)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary client error: %w; fallback client error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
