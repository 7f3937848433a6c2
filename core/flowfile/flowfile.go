package flowfile

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/leofalp/chatflow/patterns/graph"
	"github.com/leofalp/chatflow/providers/ai"
)

// ErrInvalidFlow is wrapped by every validation failure of Parse.
var ErrInvalidFlow = errors.New("invalid flow file")

var (
	edgeType    = reflect.TypeOf(graph.EdgeDocument{})
	messageType = reflect.TypeOf(ai.Message{})
)

// Load reads and parses the flow file at path. The document id defaults to
// the file name when the file does not set one.
func Load(path string) (graph.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return graph.Document{}, fmt.Errorf("read flow file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return graph.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a YAML flow. Besides the full document form it accepts two
// shorthands: an edge may be a bare target id and an instruction may be a
// bare string, which becomes a system message.
func Parse(data []byte) (graph.Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return graph.Document{}, fmt.Errorf("parse yaml: %w", err)
	}

	var doc graph.Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       shorthandHook,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &doc,
	})
	if err != nil {
		return graph.Document{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return graph.Document{}, fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}

	if err := validate(doc); err != nil {
		return graph.Document{}, err
	}
	return doc, nil
}

// Marshal renders doc in the full document form. The conversation is not
// part of a flow file and is dropped.
func Marshal(doc graph.Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func shorthandHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to {
	case edgeType:
		return map[string]any{"to": data}, nil
	case messageType:
		return map[string]any{"role": string(ai.RoleSystem), "content": data}, nil
	}
	return data, nil
}

func validate(doc graph.Document) error {
	if len(doc.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidFlow)
	}
	seen := make(map[string]bool, len(doc.Nodes))
	for i, node := range doc.Nodes {
		if node.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidFlow, i)
		}
		if seen[node.ID] {
			return fmt.Errorf("%w: duplicate node %q", ErrInvalidFlow, node.ID)
		}
		seen[node.ID] = true
	}
	for _, node := range doc.Nodes {
		for _, edge := range node.Edges {
			if edge.To == "" {
				return fmt.Errorf("%w: node %q has an edge without target", ErrInvalidFlow, node.ID)
			}
		}
		for _, edge := range node.ConditionalEdges {
			if len(edge.To) == 0 {
				return fmt.Errorf("%w: node %q has a conditional edge without targets", ErrInvalidFlow, node.ID)
			}
		}
	}
	return nil
}
