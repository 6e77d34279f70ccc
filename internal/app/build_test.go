package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ailabben/chatwidget/internal/gateway"
	"github.com/ailabben/chatwidget/internal/lead"
	"github.com/ailabben/chatwidget/internal/llm"
	"github.com/ailabben/chatwidget/internal/observability"
	"github.com/ailabben/chatwidget/internal/session"
)

type recordingSink struct {
	mu      sync.Mutex
	records []lead.Record
}

func (s *recordingSink) Persist(_ context.Context, record lead.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) all() []lead.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lead.Record, len(s.records))
	copy(out, s.records)
	return out
}

func newEvictionFixture(sink *recordingSink) (*gateway.Gateway, *session.Store) {
	metrics := observability.NewMetrics(fmt.Sprintf("chatwidget_test_app_%d", time.Now().UnixNano()))
	sessions := session.NewStore(time.Minute)
	sessions.SetEvictHook(leadEvictHook(context.Background(), sink, metrics, sessions))

	turns := gateway.New(sessions, llm.NewMockClient(), sink, metrics, gateway.Config{
		SystemPrompt:         "Du er en assistent.",
		ContactPromptMessage: "Fyll ut skjemaet under.",
		Policy:               gateway.Policy{PromptAfterNthMessage: 1},
	})
	return turns, sessions
}

func TestEvictionFlushesCapturedLeadAgain(t *testing.T) {
	sink := &recordingSink{}
	turns, sessions := newEvictionFixture(sink)

	first, err := turns.HandleTurn(context.Background(), gateway.TurnRequest{Message: "Hva koster det?"})
	if err != nil {
		t.Fatalf("first turn error = %v", err)
	}
	_, err = turns.HandleTurn(context.Background(), gateway.TurnRequest{
		SessionID: first.SessionID,
		Message:   "Ola Nordmann, ola@example.com",
	})
	if err != nil {
		t.Fatalf("submission turn error = %v", err)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("persisted leads after capture = %d, want 1", len(sink.all()))
	}

	sessions.Evict(first.SessionID, session.EndTimeout)

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("persisted leads after eviction = %d, want 2", len(records))
	}
	if records[0].EndReason != session.EndContactCollected {
		t.Fatalf("capture-time EndReason = %q, want %q", records[0].EndReason, session.EndContactCollected)
	}
	if records[1].EndReason != session.EndTimeout {
		t.Fatalf("eviction-time EndReason = %q, want %q", records[1].EndReason, session.EndTimeout)
	}
	// Same session key both times, so the sink upsert converges on one row.
	if records[1].SessionID != records[0].SessionID {
		t.Fatalf("session ids differ: %q vs %q", records[0].SessionID, records[1].SessionID)
	}
	if records[1].Email != "ola@example.com" || records[1].TriggerMessage != "Hva koster det?" {
		t.Fatalf("eviction record = %+v, want captured contact with trigger", records[1])
	}
}

func TestEvictionSkipsSessionsWithoutContact(t *testing.T) {
	sink := &recordingSink{}
	_, sessions := newEvictionFixture(sink)

	sessions.GetOrCreate("chat_1")
	sessions.Evict("chat_1", session.EndTimeout)

	if len(sink.all()) != 0 {
		t.Fatalf("persisted leads = %d, want 0 without a captured contact", len(sink.all()))
	}
}

func TestShutdownDrainFlushesCapturedLead(t *testing.T) {
	sink := &recordingSink{}
	turns, sessions := newEvictionFixture(sink)

	first, _ := turns.HandleTurn(context.Background(), gateway.TurnRequest{Message: "Hei"})
	_, err := turns.HandleTurn(context.Background(), gateway.TurnRequest{
		SessionID: first.SessionID,
		Message:   "Kari Nordmann, kari@example.com",
	})
	if err != nil {
		t.Fatalf("submission turn error = %v", err)
	}

	sessions.Shutdown(session.EndManual)

	records := sink.all()
	if len(records) != 2 {
		t.Fatalf("persisted leads after drain = %d, want 2", len(records))
	}
	if records[1].EndReason != session.EndManual {
		t.Fatalf("drain EndReason = %q, want %q", records[1].EndReason, session.EndManual)
	}
}
