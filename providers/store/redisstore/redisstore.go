package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/leofalp/chatflow/patterns/graph"
)

const defaultPrefix = "chatflow:"

// Collection names used in keys, e.g. "chatflow:agent:sales".
const (
	collectionGraph    = "graph"
	collectionAgent    = "agent"
	collectionTemplate = "template"
)

// Store is a graph.SnapshotStore keeping each document as a JSON string.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ graph.SnapshotStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. The default is "chatflow:".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires saved graphs after ttl. Agents and templates never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New connects to the Redis server at address.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to Close it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(collection, id string) string {
	return s.prefix + collection + ":" + id
}

func (s *Store) LoadGraph(ctx context.Context, id string) (graph.Document, error) {
	return s.load(ctx, collectionGraph, id)
}

func (s *Store) SaveGraph(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, collectionGraph, doc, s.ttl)
}

func (s *Store) LoadAgent(ctx context.Context, id string) (graph.Document, error) {
	return s.load(ctx, collectionAgent, id)
}

func (s *Store) SaveAgent(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, collectionAgent, doc, 0)
}

func (s *Store) LoadTemplate(ctx context.Context, name string) (graph.Document, error) {
	return s.load(ctx, collectionTemplate, name)
}

func (s *Store) SaveTemplate(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, collectionTemplate, doc, 0)
}

// Delete removes a document from collection ("graph", "agent" or "template").
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.client.Del(ctx, s.key(collection, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, collection, id string) (graph.Document, error) {
	val, err := s.client.Get(ctx, s.key(collection, id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return graph.Document{}, fmt.Errorf("%w: %s %q", graph.ErrNotFound, collection, id)
		}
		return graph.Document{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var doc graph.Document
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return graph.Document{}, fmt.Errorf("failed to unmarshal %s %q: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) save(ctx context.Context, collection string, doc graph.Document, ttl time.Duration) error {
	if doc.ID == "" {
		return fmt.Errorf("save %s: empty id", collection)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %q: %w", collection, doc.ID, err)
	}
	if err := s.client.Set(ctx, s.key(collection, doc.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}
