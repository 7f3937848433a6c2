package memory

import (
	"context"

	"github.com/leofalp/chatflow/providers/ai"
)

// Provider is the transcript of one chat thread.
type Provider interface {
	// AppendMessage stores a copy of message. A nil message is ignored.
	AppendMessage(ctx context.Context, message *ai.Message) error
	Count(ctx context.Context) (int, error)
	// AllMessages returns the thread oldest first.
	AllMessages(ctx context.Context) ([]ai.Message, error)
	// LastMessages returns up to n of the newest messages, oldest first.
	LastMessages(ctx context.Context, n int) ([]ai.Message, error)
	ClearMessages(ctx context.Context) error
}

// Store hands out the Provider of each thread.
type Store interface {
	Session(threadID string) Provider
}

// StoreFunc adapts a function to Store.
type StoreFunc func(threadID string) Provider

// Session calls the underlying function.
func (storeFunc StoreFunc) Session(threadID string) Provider {
	return storeFunc(threadID)
}
