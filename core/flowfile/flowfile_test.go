package flowfile

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
)

func TestLoad_SalesFlow(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "sales.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if doc.ID != "sales" {
		t.Errorf("ID = %q, want sales", doc.ID)
	}
	if doc.Metadata["channel"] != "whatsapp" {
		t.Errorf("metadata not decoded: %v", doc.Metadata)
	}
	if len(doc.Nodes) != 6 {
		t.Fatalf("expected 6 nodes, got %d", len(doc.Nodes))
	}

	start := doc.Nodes[0]
	if len(start.Edges) != 1 || start.Edges[0].To != "triage" {
		t.Errorf("edge shorthand not expanded: %+v", start.Edges)
	}

	triage := doc.Nodes[1]
	if len(triage.Instructions) != 1 || triage.Instructions[0].Role != ai.RoleSystem {
		t.Errorf("string instruction should become a system message: %+v", triage.Instructions)
	}
	if got := triage.ConditionalEdges[0].To; len(got) != 2 || got[1] != "completion.tool_call.redirect" {
		t.Errorf("conditional targets = %v", got)
	}

	agent := doc.Nodes[2]
	if agent.Metadata["temperature"] != 0.1 {
		t.Errorf("temperature = %v", agent.Metadata["temperature"])
	}

	redirect := doc.Nodes[3]
	if redirect.Instructions[0].Content != "Pide nombre, email, RUT y motivo antes de redirigir." {
		t.Errorf("full instruction form not decoded: %+v", redirect.Instructions)
	}
	if len(redirect.Tools) != 1 || redirect.Tools[0] != "redirect" {
		t.Errorf("tools = %v", redirect.Tools)
	}
}

func TestLoad_IntoGraph(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "sales.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	g := graph.New(graph.NewRegistry(nil))
	if err := g.Load(doc); err != nil {
		t.Fatalf("graph rejected the flow: %v", err)
	}
	if !g.HasNode("completion.tool_call.redirect") {
		t.Error("tool call node missing")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no nodes", "id: empty\n"},
		{"missing id", "nodes:\n  - type: start\n"},
		{"duplicate", "nodes:\n  - id: a\n  - id: a\n"},
		{"unknown field", "nodes:\n  - id: a\n    edgez: [b]\n"},
		{"empty conditional", "nodes:\n  - id: a\n    conditional_edges:\n      - label: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidFlow) {
				t.Errorf("expected ErrInvalidFlow, got %v", err)
			}
		})
	}

	if _, err := Parse([]byte("nodes: [")); err == nil || errors.Is(err, ErrInvalidFlow) {
		t.Errorf("malformed yaml should fail before validation, got %v", err)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	doc, err := Load(filepath.Join("testdata", "sales.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	doc.Messages = []ai.Message{ai.UserMessage("hola")}

	data, err := Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hola") {
		t.Error("the conversation should not be written to a flow file")
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("re-parse failed: %v\n%s", err, data)
	}
	if len(again.Nodes) != len(doc.Nodes) || again.Nodes[1].ConditionalEdges[0].Label != "route" {
		t.Errorf("round trip lost structure: %+v", again.Nodes)
	}
}
