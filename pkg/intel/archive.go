package intel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TryMightyAI/mirage/pkg/events"
)

// ArchiveTarget persists final session intelligence reports to Postgres.
// It is wired as an event dispatcher target and only acts on
// SESSION_COMPLETED events; everything else is acknowledged untouched.
type ArchiveTarget struct {
	pool *pgxpool.Pool
}

// NewArchiveTarget connects to Postgres and ensures the report table exists.
func NewArchiveTarget(ctx context.Context, dsn string) (*ArchiveTarget, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	const ddl = `
		CREATE TABLE IF NOT EXISTS session_reports (
			dedup_key   TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			report      JSONB NOT NULL
		)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create session_reports: %w", err)
	}

	return &ArchiveTarget{pool: pool}, nil
}

// Name identifies the target in logs.
func (t *ArchiveTarget) Name() string {
	return "postgres-archive"
}

// Deliver stores SESSION_COMPLETED reports. The dedup key is the primary
// key, so retried deliveries are no-ops instead of duplicate rows.
func (t *ArchiveTarget) Deliver(ctx context.Context, evt *events.Event) error {
	if evt.Type != events.TypeSessionCompleted {
		return nil
	}

	report, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	const insert = `
		INSERT INTO session_reports (dedup_key, session_id, completed_at, report)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dedup_key) DO NOTHING`
	if _, err := t.pool.Exec(ctx, insert, evt.DedupKey, evt.SessionID, evt.Timestamp, report); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (t *ArchiveTarget) Close() {
	t.pool.Close()
}

var _ events.Target = (*ArchiveTarget)(nil)
