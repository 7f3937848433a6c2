package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leofalp/chatflow/patterns/graph"
)

// DefaultDatabase is used when no database name is given.
const DefaultDatabase = "chatflow"

const defaultTimeout = 5 * time.Second

// Store is a graph.SnapshotStore over three collections: graph, agent and
// template.
type Store struct {
	graphs    *mongo.Collection
	agents    *mongo.Collection
	templates *mongo.Collection
	timeout   time.Duration
}

var _ graph.SnapshotStore = (*Store)(nil)

// New returns a Store on dbName, or DefaultDatabase when dbName is empty.
func New(client *mongo.Client, dbName string) *Store {
	if dbName == "" {
		dbName = DefaultDatabase
	}
	db := client.Database(dbName)
	return &Store{
		graphs:    db.Collection("graph"),
		agents:    db.Collection("agent"),
		templates: db.Collection("template"),
		timeout:   defaultTimeout,
	}
}

// Connect opens a client for uri and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (s *Store) LoadGraph(ctx context.Context, id string) (graph.Document, error) {
	return s.load(ctx, s.graphs, id)
}

func (s *Store) SaveGraph(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, s.graphs, doc)
}

func (s *Store) LoadAgent(ctx context.Context, id string) (graph.Document, error) {
	return s.load(ctx, s.agents, id)
}

func (s *Store) SaveAgent(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, s.agents, doc)
}

func (s *Store) LoadTemplate(ctx context.Context, name string) (graph.Document, error) {
	return s.load(ctx, s.templates, name)
}

func (s *Store) SaveTemplate(ctx context.Context, doc graph.Document) error {
	return s.save(ctx, s.templates, doc)
}

func (s *Store) load(ctx context.Context, coll *mongo.Collection, id string) (graph.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc graph.Document
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return graph.Document{}, fmt.Errorf("%w: %s %q", graph.ErrNotFound, coll.Name(), id)
		}
		return graph.Document{}, err
	}
	return doc, nil
}

// save replaces the whole document, creating it when missing.
func (s *Store) save(ctx context.Context, coll *mongo.Collection, doc graph.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("save %s: empty id", coll.Name())
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
