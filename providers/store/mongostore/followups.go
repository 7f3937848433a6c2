package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leofalp/chatflow/internal/followup"
)

// FollowUpStore is a followup.Store over the chat and pipeline collections.
type FollowUpStore struct {
	chats     *mongo.Collection
	pipelines *mongo.Collection
	timeout   time.Duration
}

var _ followup.Store = (*FollowUpStore)(nil)

// NewFollowUpStore returns a FollowUpStore on dbName, or DefaultDatabase.
func NewFollowUpStore(client *mongo.Client, dbName string) *FollowUpStore {
	if dbName == "" {
		dbName = DefaultDatabase
	}
	db := client.Database(dbName)
	return &FollowUpStore{
		chats:     db.Collection("chat"),
		pipelines: db.Collection("pipeline"),
		timeout:   defaultTimeout,
	}
}

// Touch upserts the chat. The follow-up history is only written on insert,
// so steps already sent stay sent.
func (s *FollowUpStore) Touch(ctx context.Context, chatID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	history := bson.M{}
	for _, step := range followup.Steps {
		history[string(step)] = false
	}
	update := bson.M{
		"$set":         bson.M{"last_user_message_at": at},
		"$setOnInsert": bson.M{"follow_up_history": history},
	}
	_, err := s.chats.UpdateByID(ctx, chatID, update, options.Update().SetUpsert(true))
	return err
}

func (s *FollowUpStore) Chats(ctx context.Context) ([]followup.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	defer cancel()

	cur, err := s.chats.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var chats []followup.Chat
	for cur.Next(ctx) {
		var chat followup.Chat
		if err := cur.Decode(&chat); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *FollowUpStore) MarkSent(ctx context.Context, chatID string, step followup.Step) error {
	return s.mark(ctx, chatID, bson.M{"follow_up_history." + string(step): true})
}

func (s *FollowUpStore) MarkAllSent(ctx context.Context, chatID string) error {
	set := bson.M{}
	for _, step := range followup.Steps {
		set["follow_up_history."+string(step)] = true
	}
	return s.mark(ctx, chatID, set)
}

func (s *FollowUpStore) mark(ctx context.Context, chatID string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.chats.UpdateByID(ctx, chatID, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %q", followup.ErrChatNotFound, chatID)
	}
	return nil
}

func (s *FollowUpStore) Pipeline(ctx context.Context, sessionID string) (followup.Pipeline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var pipeline followup.Pipeline
	err := s.pipelines.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&pipeline)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return followup.Pipeline{}, fmt.Errorf("%w: %q", followup.ErrPipelineNotFound, sessionID)
		}
		return followup.Pipeline{}, err
	}
	return pipeline, nil
}

// SavePipeline stores pipeline under its session id.
func (s *FollowUpStore) SavePipeline(ctx context.Context, pipeline followup.Pipeline) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pipelines.ReplaceOne(ctx, bson.M{"_id": pipeline.SessionID}, pipeline, options.Replace().SetUpsert(true))
	return err
}
