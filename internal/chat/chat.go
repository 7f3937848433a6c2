// Package chat answers incoming customer messages with the agent graph and
// keeps the per-thread transcript.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/chatflow/internal/followup"
	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/memory"
	"github.com/leofalp/chatflow/providers/observability"
)

// DefaultHistoryLimit is how many past messages are sent to the graph.
const DefaultHistoryLimit = 31

// dateLayout renders dates the way Chilean customers write them.
const dateLayout = "02-01-2006"

// Sender delivers the reply to the customer.
type Sender interface {
	SendText(ctx context.Context, chatID, body string) error
}

// Config wires a Service. Registry and Memory are required.
type Config struct {
	Registry *graph.Registry
	Memory   memory.Store
	// Snapshots and AgentID select the stored agent flow. When either is
	// unset, or the agent does not exist, Flow is used, and then the
	// default graph.
	Snapshots graph.SnapshotStore
	AgentID   string
	Flow      *graph.Document

	FollowUps    followup.Store
	Sender       Sender
	HistoryLimit int
	Location     *time.Location
	GraphOptions []graph.Option
	Observer     observability.Provider
	Now          func() time.Time
}

// Reply is the outcome of one handled message.
type Reply struct {
	ThreadID string
	Text     string
	Result   *graph.RunResult
}

// Service runs one graph per incoming message.
type Service struct {
	config Config
}

// New fills in defaults.
func New(config Config) (*Service, error) {
	if config.Registry == nil || config.Memory == nil {
		return nil, errors.New("chat: registry and memory are required")
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{config: config}, nil
}

// Graph builds a fresh graph with the configured agent flow.
func (s *Service) Graph(ctx context.Context) (*graph.Graph, error) {
	return s.graphFor(ctx, s.config.AgentID)
}

// GraphFor builds a fresh graph with the flow of agentID.
func (s *Service) GraphFor(ctx context.Context, agentID string) (*graph.Graph, error) {
	return s.graphFor(ctx, agentID)
}

func (s *Service) graphFor(ctx context.Context, agentID string) (*graph.Graph, error) {
	g := graph.New(s.config.Registry, s.config.GraphOptions...)

	if s.config.Snapshots != nil && agentID != "" {
		err := g.LoadAgent(ctx, s.config.Snapshots, agentID)
		switch {
		case err == nil:
			return g, nil
		case errors.Is(err, graph.ErrNotFound):
			s.warn(ctx, "agent not found, using fallback flow", observability.String("agent_id", agentID))
		default:
			return nil, err
		}
	}

	if s.config.Flow != nil {
		if err := g.Load(graph.CloneDocument(*s.config.Flow)); err != nil {
			return nil, fmt.Errorf("load flow %q: %w", s.config.Flow.ID, err)
		}
		return g, nil
	}
	if err := g.Default(); err != nil {
		return nil, err
	}
	return g, nil
}

// Reply records text as a user message of threadID, runs the agent graph
// over the recent history and records the answer. An empty threadID starts
// a new thread.
func (s *Service) Reply(ctx context.Context, threadID, text string) (*Reply, error) {
	return s.reply(ctx, threadID, text, nil)
}

// Stream is Reply with listener subscribed to every state change of the run.
func (s *Service) Stream(ctx context.Context, threadID, text string, listener func(graph.Snapshot)) (*Reply, error) {
	return s.reply(ctx, threadID, text, listener)
}

// Handle replies to an incoming message and sends the answer back through
// the Sender. Nothing is sent when the graph produced no text.
func (s *Service) Handle(ctx context.Context, chatID, text string) (*Reply, error) {
	reply, err := s.Reply(ctx, chatID, text)
	if err != nil {
		return nil, err
	}
	if reply.Text == "" || s.config.Sender == nil {
		return reply, nil
	}
	if err := s.config.Sender.SendText(ctx, reply.ThreadID, reply.Text); err != nil {
		return reply, fmt.Errorf("send reply: %w", err)
	}
	return reply, nil
}

func (s *Service) reply(ctx context.Context, threadID, text string, listener func(graph.Snapshot)) (*Reply, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	now := s.config.Now()
	transcript := s.config.Memory.Session(threadID)

	incoming := ai.UserMessage(text)
	if err := transcript.AppendMessage(ctx, &incoming); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	if s.config.FollowUps != nil {
		if err := s.config.FollowUps.Touch(ctx, threadID, now); err != nil {
			s.warn(ctx, "failed to record chat activity", observability.String(observability.AttrGraphThreadID, threadID), observability.Error(err))
		}
	}

	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if listener != nil {
		subscription := g.OnStateChange(listener)
		defer g.OffStateChange(subscription)
	}

	history, err := transcript.LastMessages(ctx, s.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	input := graph.RunInput{
		Messages: history,
		Metadata: map[string]any{"date": now.In(s.config.Location).Format(dateLayout)},
		ThreadID: threadID,
	}
	var result *graph.RunResult
	if listener != nil {
		result, err = g.StreamEvents(ctx, input)
	} else {
		result, err = g.Run(ctx, input)
	}
	if err != nil {
		return nil, err
	}

	if result.Output != "" {
		answer := ai.AssistantMessage(result.Output)
		if err := transcript.AppendMessage(ctx, &answer); err != nil {
			return nil, fmt.Errorf("append reply: %w", err)
		}
	}
	return &Reply{ThreadID: threadID, Text: result.Output, Result: result}, nil
}

func (s *Service) warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	observer := s.config.Observer
	if observer == nil {
		observer = observability.ObserverFromContext(ctx)
	}
	if observer != nil {
		observer.Warn(ctx, msg, attrs...)
	}
}
