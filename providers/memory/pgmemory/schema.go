package pgmemory

import (
	"context"
	"fmt"
	"strings"
)

// seq orders a thread; created_at is informational since two messages of
// one reply can share a timestamp.
const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    seq          BIGSERIAL PRIMARY KEY,
    thread_id    TEXT NOT NULL,
    role         TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    tool_calls   JSONB,
    tool_call_id TEXT,
    name         TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS %s ON %s (thread_id, seq)`

// EnsureSchema creates the messages table and its thread index when
// missing. Deployments with a migration tool can skip it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, statement := range []string{s.sql.createTable, s.sql.createIndex} {
		if _, err := s.db.Exec(ctx, statement); err != nil {
			return fmt.Errorf("pgmemory: ensure schema: %w", err)
		}
	}
	return nil
}

func indexName(table string) string {
	return `"idx_` + strings.ReplaceAll(table, `"`, "") + `_thread"`
}
