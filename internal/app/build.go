// Package app wires configuration into a running service graph.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ailabben/chatwidget/internal/config"
	"github.com/ailabben/chatwidget/internal/gateway"
	"github.com/ailabben/chatwidget/internal/httpapi"
	"github.com/ailabben/chatwidget/internal/lead"
	"github.com/ailabben/chatwidget/internal/llm"
	"github.com/ailabben/chatwidget/internal/observability"
	"github.com/ailabben/chatwidget/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Store
	Gateway  *gateway.Gateway
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB pool, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	sink, err := lead.NewSink(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("lead sink init failed: %w", err)
	}

	client, err := llm.NewClient(llm.Config{
		Provider:       cfg.LLMProvider,
		MistralAPIKey:  cfg.MistralAPIKey,
		MistralBaseURL: cfg.MistralBaseURL,
		MistralModel:   cfg.MistralModel,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.OpenAIBaseURL,
		OpenAIModel:    cfg.OpenAIModel,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		Timeout:        cfg.LLMTimeout,
	})
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}

	sessions := session.NewStore(cfg.SessionInactivityTimeout)
	sessions.SetEvictHook(leadEvictHook(ctx, sink, metrics, sessions))

	turns := gateway.New(sessions, client, sink, metrics, gateway.Config{
		SystemPrompt:         cfg.SystemPrompt,
		ContactPromptMessage: cfg.ContactPromptMessage,
		Policy: gateway.Policy{
			PromptAfterNthMessage: cfg.ContactPromptThreshold,
		},
	})

	api := httpapi.New(cfg, sessions, turns, metrics)

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Gateway:  turns,
		Metrics:  metrics,
		Cleanup:  sink.Close,
	}, nil
}

// leadEvictHook returns the store hook that flushes a captured contact when
// its session leaves the store. Eviction is the last chance to persist, so
// the flush runs on a fresh context that an already-cancelled caller cannot
// drop.
func leadEvictHook(ctx context.Context, sink lead.Sink, metrics *observability.Metrics, sessions *session.Store) func(*session.Session, session.EndReason) {
	return func(sess *session.Session, reason session.EndReason) {
		metrics.SessionEvents.WithLabelValues(string(reason)).Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))

		record, ok := lead.FromSession(sess, reason)
		if !ok {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := sink.Persist(flushCtx, record); err != nil {
			metrics.LeadSinkEvents.WithLabelValues("failed").Inc()
			log.Printf("lead flush at eviction failed for session %s: %v", sess.ID, err)
			return
		}
		metrics.LeadSinkEvents.WithLabelValues("persisted").Inc()
	}
}
