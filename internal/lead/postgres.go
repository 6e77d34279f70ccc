package lead

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists leads in PostgreSQL. The upsert is keyed by session
// id, so the capture-time flush and the eviction-time flush for the same
// session converge on a single row.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chatbot_leads (
			session_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			transcript TEXT NOT NULL,
			trigger_message TEXT,
			page_url TEXT,
			client_ip TEXT,
			user_agent TEXT,
			session_duration_ms BIGINT NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chatbot_leads_created ON chatbot_leads (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) Persist(ctx context.Context, record Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chatbot_leads
			(session_id, name, email, transcript, trigger_message, page_url, client_ip, user_agent, session_duration_ms, end_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			transcript = EXCLUDED.transcript,
			trigger_message = EXCLUDED.trigger_message,
			page_url = EXCLUDED.page_url,
			client_ip = EXCLUDED.client_ip,
			user_agent = EXCLUDED.user_agent,
			session_duration_ms = EXCLUDED.session_duration_ms,
			end_reason = EXCLUDED.end_reason,
			updated_at = now()`,
		record.SessionID,
		record.Name,
		record.Email,
		Transcript(record.History),
		record.TriggerMessage,
		record.PageURL,
		record.ClientIP,
		record.UserAgent,
		record.SessionDuration.Milliseconds(),
		string(record.EndReason),
	)
	if err != nil {
		return fmt.Errorf("persist lead: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
