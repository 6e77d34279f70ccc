package lead

import (
	"context"
	"log"
	"strings"
)

// Sink persists lead records. Persist must tolerate being called more than
// once for the same session: capture time and eviction time both flush.
type Sink interface {
	Persist(ctx context.Context, record Record) error
	Close() error
}

// NewSink creates a postgres-backed sink when configured, otherwise a
// console sink.
func NewSink(ctx context.Context, databaseURL string) (Sink, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewLogSink(), nil
	}
	return NewPostgresSink(ctx, databaseURL)
}

// LogSink writes leads to the process log. Used when no database is
// configured, so captured contacts are at least visible to the operator.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Persist(_ context.Context, record Record) error {
	log.Printf("lead captured (no database configured): session=%s name=%q email=%q trigger=%q reason=%s",
		record.SessionID, record.Name, record.Email, record.TriggerMessage, record.EndReason)
	log.Printf("lead transcript for %s:\n%s", record.SessionID, Transcript(record.History))
	return nil
}

func (s *LogSink) Close() error { return nil }
