package followup

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	// ErrChatNotFound is returned when a chat has never been touched.
	ErrChatNotFound = errors.New("follow-up chat not found")

	// ErrPipelineNotFound is returned when no pipeline exists for a session.
	ErrPipelineNotFound = errors.New("follow-up pipeline not found")
)

// Step names a follow-up message in a chat's history.
type Step string

const (
	Step4h  Step = "4hr"
	Step24h Step = "24hr"
)

// Steps lists the follow-up steps in the order they are sent.
var Steps = []Step{Step4h, Step24h}

// Chat is the follow-up view of a conversation.
type Chat struct {
	ID                string        `bson:"_id"`
	LastUserMessageAt time.Time     `bson:"last_user_message_at"`
	History           map[Step]bool `bson:"follow_up_history"`
}

// Sent reports whether step was already delivered.
func (c Chat) Sent(step Step) bool {
	return c.History[step]
}

// PipelineStep is one message of a pipeline.
type PipelineStep struct {
	Step            int    `bson:"step" json:"step"`
	DelayInHours    int    `bson:"delay_in_hours" json:"delay_in_hours"`
	MessageTemplate string `bson:"message_template" json:"message_template"`
}

// Pipeline holds the follow-up messages of a messaging session. Steps[0]
// answers Step4h and Steps[1] answers Step24h.
type Pipeline struct {
	SessionID string         `bson:"_id" json:"session_id"`
	Name      string         `bson:"name" json:"name"`
	Steps     []PipelineStep `bson:"steps" json:"steps"`
}

// Store tracks user activity per chat and which follow-ups went out.
type Store interface {
	// Touch records a user message at the given time. A chat seen for the
	// first time starts with every step unsent.
	Touch(ctx context.Context, chatID string, at time.Time) error
	Chats(ctx context.Context) ([]Chat, error)
	MarkSent(ctx context.Context, chatID string, step Step) error
	// MarkAllSent stops every pending follow-up for the chat.
	MarkAllSent(ctx context.Context, chatID string) error
	Pipeline(ctx context.Context, sessionID string) (Pipeline, error)
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	chats     map[string]*Chat
	pipelines map[string]Pipeline
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:     make(map[string]*Chat),
		pipelines: make(map[string]Pipeline),
	}
}

// SetPipeline installs the pipeline of its session.
func (s *MemoryStore) SetPipeline(pipeline Pipeline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pipeline.Steps = slices.Clone(pipeline.Steps)
	s.pipelines[pipeline.SessionID] = pipeline
}

func (s *MemoryStore) Touch(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		chat = &Chat{ID: chatID, History: newHistory()}
		s.chats[chatID] = chat
	}
	chat.LastUserMessageAt = at
	return nil
}

func (s *MemoryStore) Chats(_ context.Context) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]Chat, 0, len(s.chats))
	for _, id := range slices.Sorted(maps.Keys(s.chats)) {
		chat := *s.chats[id]
		chat.History = maps.Clone(chat.History)
		chats = append(chats, chat)
	}
	return chats, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, chatID string, step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrChatNotFound, chatID)
	}
	chat.History[step] = true
	return nil
}

func (s *MemoryStore) MarkAllSent(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrChatNotFound, chatID)
	}
	for _, step := range Steps {
		chat.History[step] = true
	}
	return nil
}

func (s *MemoryStore) Pipeline(_ context.Context, sessionID string) (Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pipeline, ok := s.pipelines[sessionID]
	if !ok {
		return Pipeline{}, fmt.Errorf("%w: %q", ErrPipelineNotFound, sessionID)
	}
	pipeline.Steps = slices.Clone(pipeline.Steps)
	return pipeline, nil
}

func newHistory() map[Step]bool {
	history := make(map[Step]bool, len(Steps))
	for _, step := range Steps {
		history[step] = false
	}
	return history
}
