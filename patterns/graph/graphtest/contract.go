// Package graphtest holds reusable checks for graph.SnapshotStore
// implementations.
package graphtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
)

// SampleDocument returns a small routed flow with a transcript, suitable
// for round-trip checks.
func SampleDocument(id string) graph.Document {
	return graph.Document{
		ID:       id,
		ThreadID: "thread-" + id,
		Metadata: map[string]any{"channel": "whatsapp"},
		Messages: []ai.Message{
			ai.UserMessage("hola"),
			ai.AssistantMessage("¿en qué te ayudo?"),
		},
		Nodes: []graph.NodeDocument{
			{ID: graph.StartID, Type: "start", Edges: []graph.EdgeDocument{{From: graph.StartID, To: "triage"}}},
			{
				ID:   "triage",
				Type: "supervisor.router",
				ConditionalEdges: []graph.ConditionalEdgeDocument{{
					From:       "triage",
					To:         []string{"agent", graph.EndID},
					Label:      "route",
					Expression: `metadata.channel == "whatsapp" ? "agent" : "END"`,
				}},
			},
			{
				ID:           "agent",
				Type:         "completion.model",
				Model:        "gpt-4o-mini",
				Instructions: []ai.Message{ai.SystemMessage("Responde en español.")},
				Metadata:     map[string]any{"temperature": "0.3"},
				Edges:        []graph.EdgeDocument{{From: "agent", To: graph.EndID}},
			},
			{ID: graph.EndID, Type: "end"},
		},
	}
}

// RunSnapshotStoreContract verifies that store behaves like
// graph.InMemorySnapshotStore: documents round-trip per collection and
// missing ids match graph.ErrNotFound.
func RunSnapshotStoreContract(t *testing.T, store graph.SnapshotStore) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000")

	collections := []struct {
		name string
		save func(context.Context, graph.Document) error
		load func(context.Context, string) (graph.Document, error)
	}{
		{"graph", store.SaveGraph, store.LoadGraph},
		{"agent", store.SaveAgent, store.LoadAgent},
		{"template", store.SaveTemplate, store.LoadTemplate},
	}

	for _, collection := range collections {
		t.Run(collection.name+" Save and Load", func(t *testing.T) {
			id := fmt.Sprintf("contract-%s-%s", collection.name, suffix)
			doc := SampleDocument(id)

			require.NoError(t, collection.save(ctx, doc))

			loaded, err := collection.load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, loaded.ID)
			assert.Equal(t, doc.ThreadID, loaded.ThreadID)
			assert.Equal(t, "whatsapp", loaded.Metadata["channel"])
			require.Len(t, loaded.Messages, 2)
			assert.Equal(t, doc.Messages[1].Content, loaded.Messages[1].Content)
			require.Len(t, loaded.Nodes, len(doc.Nodes))
			assert.Equal(t, doc.Nodes[1].ConditionalEdges[0].Expression, loaded.Nodes[1].ConditionalEdges[0].Expression)
			assert.Equal(t, []string{"agent", graph.EndID}, loaded.Nodes[1].ConditionalEdges[0].To)
			assert.Equal(t, "gpt-4o-mini", loaded.Nodes[2].Model)
		})

		t.Run(collection.name+" Overwrite", func(t *testing.T) {
			id := fmt.Sprintf("contract-overwrite-%s-%s", collection.name, suffix)
			doc := SampleDocument(id)
			require.NoError(t, collection.save(ctx, doc))

			doc.Nodes[2].Model = "gpt-4o"
			require.NoError(t, collection.save(ctx, doc))

			loaded, err := collection.load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "gpt-4o", loaded.Nodes[2].Model)
		})

		t.Run(collection.name+" Load Non-Existent", func(t *testing.T) {
			_, err := collection.load(ctx, "non-existent-"+suffix)
			assert.ErrorIs(t, err, graph.ErrNotFound)
		})
	}

	t.Run("Collections Are Independent", func(t *testing.T) {
		id := "contract-shared-" + suffix
		require.NoError(t, store.SaveAgent(ctx, SampleDocument(id)))

		_, err := store.LoadTemplate(ctx, id)
		assert.ErrorIs(t, err, graph.ErrNotFound)
		_, err = store.LoadGraph(ctx, id)
		assert.ErrorIs(t, err, graph.ErrNotFound)
	})

	t.Run("Empty ID Rejected", func(t *testing.T) {
		assert.Error(t, store.SaveAgent(ctx, graph.Document{}))
	})
}
