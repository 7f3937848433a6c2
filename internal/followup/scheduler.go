package followup

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leofalp/chatflow/providers/observability"
)

// DefaultSchedule runs the scheduler at minute one of every hour.
const DefaultSchedule = "1 * * * *"

// Sender delivers a follow-up text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID, body string) error
}

// Config wires a Scheduler. Store, Sender and SessionID are required.
type Config struct {
	Store     Store
	Sender    Sender
	SessionID string
	// Schedule is a five-field cron expression. Defaults to DefaultSchedule.
	Schedule string
	Location *time.Location
	// Follow-ups only go out between OpenHour (inclusive) and CloseHour
	// (exclusive) in Location. Default 8 and 23.
	OpenHour  int
	CloseHour int
	// Gap is the pause between two deliveries in one tick.
	Gap      time.Duration
	Observer observability.Provider
	Now      func() time.Time
}

// delays maps each step to how long the user must have been silent.
var delays = map[Step]time.Duration{
	Step4h:  4 * time.Hour,
	Step24h: 24 * time.Hour,
}

// Scheduler sends the pipeline follow-ups of silent chats on a cron schedule.
type Scheduler struct {
	config Config
	cron   *cron.Cron
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler validates config and registers the cron entry. Call Start
// to begin ticking.
func NewScheduler(config Config) (*Scheduler, error) {
	if config.Store == nil || config.Sender == nil {
		return nil, fmt.Errorf("followup: store and sender are required")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.OpenHour == 0 && config.CloseHour == 0 {
		config.OpenHour, config.CloseHour = 8, 23
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &Scheduler{
		config: config,
		cron:   cron.New(cron.WithLocation(config.Location)),
	}
	if _, err := s.cron.AddFunc(config.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("parse follow-up schedule %q: %w", config.Schedule, err)
	}
	return s, nil
}

// Start begins ticking. Ticks use ctx until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.info(s.ctx, "follow-up scheduler started", observability.String("schedule", s.config.Schedule))
}

// Stop cancels the running tick, if any, and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.Tick(ctx); err != nil {
		if s.config.Observer != nil {
			s.config.Observer.Error(ctx, "follow-up tick failed", observability.Error(err))
		}
	}
}

// Tick performs one pass and returns the number of follow-ups sent. Outside
// the delivery window it does nothing. A chat receives at most one
// follow-up per tick, and a step is only sent after the previous one.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.config.Now().In(s.config.Location)
	if hour := now.Hour(); hour < s.config.OpenHour || hour >= s.config.CloseHour {
		s.debug(ctx, "outside follow-up window", observability.Int("hour", hour))
		return 0, nil
	}

	pipeline, err := s.config.Store.Pipeline(ctx, s.config.SessionID)
	if err != nil {
		return 0, fmt.Errorf("load pipeline: %w", err)
	}
	chats, err := s.config.Store.Chats(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}

	sent := 0
	for _, chat := range chats {
		step, ok := due(chat, now)
		if !ok {
			continue
		}
		index := slices.Index(Steps, step)
		if index >= len(pipeline.Steps) {
			s.warn(ctx, "pipeline has no message for step", observability.String("step", string(step)))
			continue
		}

		if sent > 0 && s.config.Gap > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(s.config.Gap):
			}
		}

		if err := s.config.Sender.SendText(ctx, chat.ID, pipeline.Steps[index].MessageTemplate); err != nil {
			s.warn(ctx, "follow-up delivery failed",
				observability.String("chat_id", chat.ID),
				observability.String("step", string(step)),
				observability.Error(err),
			)
			continue
		}
		if err := s.config.Store.MarkSent(ctx, chat.ID, step); err != nil {
			return sent, fmt.Errorf("mark %s sent for %q: %w", step, chat.ID, err)
		}
		sent++
		s.info(ctx, "follow-up sent",
			observability.String("chat_id", chat.ID),
			observability.String("step", string(step)),
		)
	}
	return sent, nil
}

// due returns the first unsent step whose delay has elapsed. Chats without a
// follow-up history are never followed up.
func due(chat Chat, now time.Time) (Step, bool) {
	if len(chat.History) == 0 || chat.LastUserMessageAt.IsZero() {
		return "", false
	}
	silence := now.Sub(chat.LastUserMessageAt)
	for _, step := range Steps {
		if chat.Sent(step) {
			continue
		}
		if silence >= delays[step] {
			return step, true
		}
		return "", false
	}
	return "", false
}

func (s *Scheduler) info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if s.config.Observer != nil {
		s.config.Observer.Info(ctx, msg, attrs...)
	}
}

func (s *Scheduler) warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if s.config.Observer != nil {
		s.config.Observer.Warn(ctx, msg, attrs...)
	}
}

func (s *Scheduler) debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	if s.config.Observer != nil {
		s.config.Observer.Debug(ctx, msg, attrs...)
	}
}
