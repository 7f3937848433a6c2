package observability

import (
	"context"
	"errors"
	"testing"
)

type noopSpan struct{ name string }

func (s *noopSpan) End()                          {}
func (s *noopSpan) SetAttributes(...Attribute)    {}
func (s *noopSpan) SetStatus(StatusCode, string)  {}
func (s *noopSpan) RecordError(error)             {}
func (s *noopSpan) AddEvent(string, ...Attribute) {}

func TestContextHelpers(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	if SpanFromContext(nil) != nil || ObserverFromContext(nil) != nil {
		t.Fatal("nil context should yield nil values")
	}
	if SpanFromContext(context.Background()) != nil {
		t.Fatal("empty context should carry no span")
	}

	span := &noopSpan{name: "graph.run"}
	//nolint:staticcheck // nil context is part of the contract
	ctx := ContextWithSpan(nil, span)
	if got := SpanFromContext(ctx); got != span {
		t.Errorf("SpanFromContext = %v, want the attached span", got)
	}
	if ObserverFromContext(ctx) != nil {
		t.Error("span key must not leak into the observer key")
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[StatusCode]string{
		StatusUnset:    "unset",
		StatusOK:       "ok",
		StatusError:    "error",
		StatusCode(42): "unset",
	}
	for code, want := range tests {
		if got := code.String(); got != want {
			t.Errorf("StatusCode(%d).String() = %q, want %q", code, got, want)
		}
	}
}

func TestErrorAttribute(t *testing.T) {
	if attr := Error(errors.New("boom")); attr.Key != AttrError || attr.Value != "boom" {
		t.Errorf("Error(boom) = %+v", attr)
	}
	if attr := Error(nil); attr.Value != "" {
		t.Errorf("Error(nil) = %+v, want empty value", attr)
	}
}
