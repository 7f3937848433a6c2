package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/leofalp/chatflow/core/flowfile"
	"github.com/leofalp/chatflow/internal/chat"
	"github.com/leofalp/chatflow/internal/config"
	"github.com/leofalp/chatflow/internal/followup"
	"github.com/leofalp/chatflow/internal/messenger"
	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
	"github.com/leofalp/chatflow/providers/ai/middleware"
	"github.com/leofalp/chatflow/providers/ai/openai"
	"github.com/leofalp/chatflow/providers/memory"
	"github.com/leofalp/chatflow/providers/memory/inmemory"
	"github.com/leofalp/chatflow/providers/memory/pgmemory"
	"github.com/leofalp/chatflow/providers/observability"
	"github.com/leofalp/chatflow/providers/observability/prometheus"
	slogobs "github.com/leofalp/chatflow/providers/observability/slog"
	"github.com/leofalp/chatflow/providers/store/mongostore"
	"github.com/leofalp/chatflow/providers/store/redisstore"
	"github.com/leofalp/chatflow/providers/tool/redirect"
	"github.com/leofalp/chatflow/providers/tool/webfetch"
	"github.com/leofalp/chatflow/providers/tool/webhook"
)

// app holds the wired dependencies of a command and what must be released
// when it ends.
type app struct {
	cfg       config.Config
	observer  observability.Provider
	metrics   *promclient.Registry
	provider  ai.Provider
	registry  *graph.Registry
	snapshots graph.SnapshotStore
	memory    memory.Store
	followUps followup.Store
	messenger *messenger.Client
	flow      *graph.Document
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newObserver builds the slog observer, wrapped with Prometheus metrics when
// registry is non-nil. --log-level wins over the environment.
func newObserver(cmd *cobra.Command, w io.Writer, registry *promclient.Registry) (observability.Provider, error) {
	level := slogobs.LevelFromEnv(os.LookupEnv)
	if raw, _ := cmd.Flags().GetString("log-level"); raw != "" {
		parsed, err := slogobs.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
		level = parsed
	}
	asJSON, _ := cmd.Flags().GetBool("log-json")
	observer := slogobs.New(slogobs.NewLogger(w, level, asJSON))
	if registry == nil {
		return observer, nil
	}
	return prometheus.New(observer, registry), nil
}

// newApp wires every dependency from cfg. Persistent backends are chosen by
// which connection settings are present: Mongo, then Redis, then memory for
// snapshots; Postgres, then memory for transcripts.
func newApp(ctx context.Context, cmd *cobra.Command, cfg config.Config, withMetrics bool) (*app, error) {
	a := &app{cfg: cfg}
	if withMetrics {
		a.metrics = promclient.NewRegistry()
	}
	observer, err := newObserver(cmd, os.Stderr, a.metrics)
	if err != nil {
		return nil, err
	}
	a.observer = observer

	provider := openai.New().WithAPIKey(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		provider = provider.WithBaseURL(cfg.OpenAIBaseURL)
	}
	middlewares := []middleware.Middleware{middleware.Logging(a.observer, middleware.LogLevelStandard)}
	if cfg.LLMRetries > 0 {
		// Each attempt gets an equal share of the node budget.
		middlewares = append(middlewares,
			middleware.Retry(middleware.RetryConfig{MaxRetries: cfg.LLMRetries}),
			middleware.Timeout(cfg.NodeTimeout/time.Duration(cfg.LLMRetries+1)),
		)
	}
	a.provider = middleware.Wrap(provider, middlewares...)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.messenger = messenger.New(cfg.MessengerURL)

	a.registry = graph.NewRegistry(a.provider).
		WithPosterFactory(webhookPoster).
		RegisterTool(webfetch.New()).
		RegisterTool(redirect.New(redirect.Config{
			PublicName: cfg.PublicName,
			Location:   loc,
			Notifier:   notifier(cfg, a.messenger),
			FollowUps:  a.followUps,
		}))

	if flowPath, _ := cmd.Flags().GetString("flow"); flowPath != "" {
		doc, err := flowfile.Load(flowPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.flow = &doc
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	a.snapshots = graph.NewInMemorySnapshotStore()
	a.memory = inmemory.NewStore()
	a.followUps = followup.NewMemoryStore()

	switch {
	case a.cfg.MongoURI != "":
		client, err := mongostore.Connect(ctx, a.cfg.MongoURI)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		a.useMongo(client)
	case a.cfg.RedisAddr != "":
		store := redisstore.New(a.cfg.RedisAddr, "", 0)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Client().Close() })
		a.snapshots = store
	}

	if a.cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store := pgmemory.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		a.memory = store
	}
	return nil
}

func (a *app) useMongo(client *mongo.Client) {
	a.snapshots = mongostore.New(client, a.cfg.MongoDatabase)
	a.followUps = mongostore.NewFollowUpStore(client, a.cfg.MongoDatabase)
}

func (a *app) graphOptions() []graph.Option {
	return []graph.Option{
		graph.WithMaxIterations(a.cfg.MaxIterations),
		graph.WithNodeTimeout(a.cfg.NodeTimeout),
		graph.WithObserver(a.observer),
	}
}

func (a *app) chatService(sender chat.Sender) (*chat.Service, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	config := chat.Config{
		Registry:     a.registry,
		Memory:       a.memory,
		Snapshots:    a.snapshots,
		AgentID:      a.cfg.AgentID,
		Flow:         a.flow,
		FollowUps:    a.followUps,
		HistoryLimit: a.cfg.HistoryLimit,
		Location:     loc,
		GraphOptions: a.graphOptions(),
		Observer:     a.observer,
	}
	if sender != nil {
		config.Sender = sender
	}
	return chat.New(config)
}

// notifier sends redirect notices to NOTIFY_SERVER, or through the
// messenger when no dedicated server is configured.
func notifier(cfg config.Config, fallback *messenger.Client) redirect.Notifier {
	if cfg.NotifyServer != "" {
		return redirect.HTTPNotifier{URL: cfg.NotifyServer}
	}
	return fallback
}

// webhookPoster binds webhook nodes, from --flow or a stored agent, to the
// url in their metadata.
func webhookPoster(url, apiKey string) graph.Poster {
	return webhook.New(url, apiKey)
}

var errNoFlow = errors.New("no flow: pass --flow or set AGENT_ID with a snapshot store")
