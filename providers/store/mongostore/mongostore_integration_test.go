//go:build integration

package mongostore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/leofalp/chatflow/internal/followup"
	"github.com/leofalp/chatflow/patterns/graph/graphtest"
	"github.com/leofalp/chatflow/providers/store/mongostore"
)

func startMongo(t *testing.T) *mongo.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("mongod startup complete"),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "mongodb")
	require.NoError(t, err)

	client, err := mongostore.Connect(ctx, endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestMongoStore_Contract(t *testing.T) {
	client := startMongo(t)
	graphtest.RunSnapshotStoreContract(t, mongostore.New(client, "chatflow_test"))
}

func TestFollowUpStore(t *testing.T) {
	client := startMongo(t)
	store := mongostore.NewFollowUpStore(client, "chatflow_test")
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Touch(ctx, "569@c.us", at))
	require.NoError(t, store.MarkSent(ctx, "569@c.us", followup.Step4h))
	require.NoError(t, store.Touch(ctx, "569@c.us", at.Add(time.Hour)))

	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.True(t, chats[0].Sent(followup.Step4h))
	assert.False(t, chats[0].Sent(followup.Step24h))
	assert.True(t, chats[0].LastUserMessageAt.Equal(at.Add(time.Hour)))

	require.NoError(t, store.MarkAllSent(ctx, "569@c.us"))
	chats, err = store.Chats(ctx)
	require.NoError(t, err)
	assert.True(t, chats[0].Sent(followup.Step24h))

	assert.ErrorIs(t, store.MarkSent(ctx, "nobody", followup.Step4h), followup.ErrChatNotFound)

	_, err = store.Pipeline(ctx, "session-1")
	assert.ErrorIs(t, err, followup.ErrPipelineNotFound)

	pipeline := followup.Pipeline{
		SessionID: "session-1",
		Name:      "Seguimiento estándar",
		Steps:     []followup.PipelineStep{{Step: 1, DelayInHours: 4, MessageTemplate: "¿Sigues ahí?"}},
	}
	require.NoError(t, store.SavePipeline(ctx, pipeline))
	loaded, err := store.Pipeline(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline, loaded)
}
