package pgmemory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/memory"
)

// DefaultTable holds every thread unless WithTableName says otherwise.
const DefaultTable = "chatflow_messages"

// Querier is what the package needs from pgx. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx satisfy it, and so does a pgxmock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a Store or a Thread.
type Option func(*statements)

// WithTableName stores messages in name, quoted as an identifier.
func WithTableName(name string) Option {
	return func(s *statements) {
		*s = newStatements(pgx.Identifier{name}.Sanitize())
	}
}

// statements is the SQL for one table, rendered once.
type statements struct {
	table       string
	insert      string
	count       string
	all         string
	last        string
	clear       string
	createTable string
	createIndex string
}

func newStatements(table string) statements {
	columns := "role, content, tool_calls, tool_call_id, name"
	return statements{
		table:  table,
		insert: `INSERT INTO ` + table + ` (thread_id, ` + columns + `) VALUES ($1, $2, $3, $4, $5, $6)`,
		count:  `SELECT COUNT(*) FROM ` + table + ` WHERE thread_id = $1`,
		all:    `SELECT ` + columns + ` FROM ` + table + ` WHERE thread_id = $1 ORDER BY seq`,
		last: `SELECT ` + columns + ` FROM (SELECT seq, ` + columns + ` FROM ` + table +
			` WHERE thread_id = $1 ORDER BY seq DESC LIMIT $2) newest ORDER BY newest.seq`,
		clear:       `DELETE FROM ` + table + ` WHERE thread_id = $1`,
		createTable: fmt.Sprintf(createTableSQL, table),
		createIndex: fmt.Sprintf(createIndexSQL, indexName(table), table),
	}
}

func render(opts []Option) statements {
	sql := newStatements(DefaultTable)
	for _, opt := range opts {
		opt(&sql)
	}
	return sql
}

// Thread is the Postgres transcript of one chat thread.
type Thread struct {
	db       Querier
	threadID string
	sql      statements
}

var _ memory.Provider = (*Thread)(nil)

// New returns the transcript of threadID.
func New(db Querier, threadID string, opts ...Option) *Thread {
	return &Thread{db: db, threadID: threadID, sql: render(opts)}
}

// AppendMessage inserts message. Tool calls go to a JSONB column that stays
// NULL for plain messages.
func (t *Thread) AppendMessage(ctx context.Context, message *ai.Message) error {
	if message == nil {
		return nil
	}
	var toolCalls []byte
	if len(message.ToolCalls) > 0 {
		var err error
		if toolCalls, err = json.Marshal(message.ToolCalls); err != nil {
			return fmt.Errorf("pgmemory: encode tool calls: %w", err)
		}
	}
	_, err := t.db.Exec(ctx, t.sql.insert,
		t.threadID, string(message.Role), message.Content, toolCalls, message.ToolCallID, message.Name)
	if err != nil {
		return fmt.Errorf("pgmemory: append to %s: %w", t.threadID, err)
	}
	return nil
}

func (t *Thread) Count(ctx context.Context) (int, error) {
	var count int
	if err := t.db.QueryRow(ctx, t.sql.count, t.threadID).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgmemory: count %s: %w", t.threadID, err)
	}
	return count, nil
}

// AllMessages returns the thread in insertion order.
func (t *Thread) AllMessages(ctx context.Context) ([]ai.Message, error) {
	return t.query(ctx, t.sql.all, t.threadID)
}

// LastMessages returns the n newest messages, oldest first.
func (t *Thread) LastMessages(ctx context.Context, n int) ([]ai.Message, error) {
	if n <= 0 {
		return []ai.Message{}, nil
	}
	return t.query(ctx, t.sql.last, t.threadID, n)
}

func (t *Thread) ClearMessages(ctx context.Context) error {
	if _, err := t.db.Exec(ctx, t.sql.clear, t.threadID); err != nil {
		return fmt.Errorf("pgmemory: clear %s: %w", t.threadID, err)
	}
	return nil
}

func (t *Thread) query(ctx context.Context, sql string, args ...any) ([]ai.Message, error) {
	rows, err := t.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgmemory: read %s: %w", t.threadID, err)
	}
	defer rows.Close()

	messages := []ai.Message{}
	for rows.Next() {
		var (
			role, content    string
			toolCalls        []byte
			toolCallID, name *string
		)
		if err := rows.Scan(&role, &content, &toolCalls, &toolCallID, &name); err != nil {
			return nil, fmt.Errorf("pgmemory: scan: %w", err)
		}
		message := ai.Message{Role: ai.MessageRole(role), Content: content}
		if toolCallID != nil {
			message.ToolCallID = *toolCallID
		}
		if name != nil {
			message.Name = *name
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &message.ToolCalls); err != nil {
				return nil, fmt.Errorf("pgmemory: decode tool calls: %w", err)
			}
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgmemory: read %s: %w", t.threadID, err)
	}
	return messages, nil
}

// Store hands out a Thread per chat over one shared Querier.
type Store struct {
	db  Querier
	sql statements
}

var _ memory.Store = (*Store)(nil)

func NewStore(db Querier, opts ...Option) *Store {
	return &Store{db: db, sql: render(opts)}
}

func (s *Store) Session(threadID string) memory.Provider {
	return &Thread{db: s.db, threadID: threadID, sql: s.sql}
}
