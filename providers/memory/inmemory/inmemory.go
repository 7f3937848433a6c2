package inmemory

import (
	"context"
	"sync"

	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/memory"
	"github.com/leofalp/chatflow/providers/observability"
)

// ArrayMemory is a concurrency-safe, slice-backed transcript.
type ArrayMemory struct {
	mu       sync.RWMutex
	messages []ai.Message
}

var _ memory.Provider = (*ArrayMemory)(nil)

// New returns an empty ArrayMemory.
func New() *ArrayMemory {
	return &ArrayMemory{messages: []ai.Message{}}
}

// AppendMessage stores a copy of message. When ctx carries a span, the
// message role and the new history length are recorded on it.
func (m *ArrayMemory) AppendMessage(ctx context.Context, message *ai.Message) error {
	if message == nil {
		return nil
	}

	m.mu.Lock()
	m.messages = append(m.messages, *message)
	total := len(m.messages)
	m.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent("memory.append",
			observability.String("memory.message.role", string(message.Role)),
			observability.Int("memory.total_messages", total),
		)
	}
	return nil
}

// Count returns the number of stored messages.
func (m *ArrayMemory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages), nil
}

// AllMessages returns a copy of the transcript.
func (m *ArrayMemory) AllMessages(_ context.Context) ([]ai.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ai.Message, len(m.messages))
	copy(out, m.messages)
	return out, nil
}

// LastMessages returns up to the last n messages as a new slice. It is empty,
// never nil, when n <= 0 or the transcript is empty.
func (m *ArrayMemory) LastMessages(_ context.Context, n int) ([]ai.Message, error) {
	if n <= 0 {
		return []ai.Message{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n = min(n, len(m.messages))
	out := make([]ai.Message, n)
	copy(out, m.messages[len(m.messages)-n:])
	return out, nil
}

// ClearMessages empties the transcript and keeps its capacity.
func (m *ArrayMemory) ClearMessages(_ context.Context) error {
	m.mu.Lock()
	m.messages = m.messages[:0]
	m.mu.Unlock()
	return nil
}

// Store keeps one ArrayMemory per thread.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*ArrayMemory
}

var _ memory.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*ArrayMemory)}
}

// Session returns the transcript of threadID, creating it on first use.
func (s *Store) Session(threadID string) memory.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[threadID]
	if !ok {
		session = New()
		s.sessions[threadID] = session
	}
	return session
}
