package slog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leofalp/chatflow/providers/observability"
)

func newTestObserver(level slog.Level) (*Observer, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(NewLogger(&buf, level, false)), &buf
}

func TestObserver_New(t *testing.T) {
	if obs := New(nil); obs == nil || obs.Logger() == nil {
		t.Fatal("New(nil) should fall back to the default logger")
	}
}

func TestObserver_StartSpan_AttachesSpanToContext(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)

	ctx, span := obs.StartSpan(context.Background(), "graph.run", observability.String("key", "value"))
	if observability.SpanFromContext(ctx) != span {
		t.Fatal("span should be retrievable from the returned context")
	}

	output := buf.String()
	if !strings.Contains(output, "graph.run") || !strings.Contains(output, "span.start") {
		t.Errorf("expected span start record, got: %s", output)
	}
}

func TestObserver_Span_EndOnce(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)
	_, span := obs.StartSpan(context.Background(), "node")
	span.SetAttributes(observability.Int(observability.AttrGraphIteration, 2))
	span.SetStatus(observability.StatusOK, "done")
	buf.Reset()

	span.End()
	span.End()

	output := buf.String()
	if strings.Count(output, "span.end") != 1 {
		t.Errorf("expected exactly one span.end record, got: %s", output)
	}
	for _, want := range []string{"duration", "graph.iteration=2", "status=ok", "status_description=done"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestObserver_Span_RecordError(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)
	_, span := obs.StartSpan(context.Background(), "node")
	buf.Reset()

	span.RecordError(nil)
	if buf.Len() != 0 {
		t.Errorf("nil error should not be logged, got: %s", buf.String())
	}

	span.RecordError(errors.New("boom"))
	span.SetStatus(observability.StatusError, "boom")
	span.End()

	output := buf.String()
	if !strings.Contains(output, "level=ERROR") || !strings.Contains(output, "boom") {
		t.Errorf("expected error record, got: %s", output)
	}
	if !strings.Contains(output, "level=WARN") {
		t.Errorf("failed span should end at WARN, got: %s", output)
	}
}

func TestObserver_Metrics(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelDebug)
	ctx := context.Background()

	counter := obs.Counter(observability.MetricGraphNodeCount)
	counter.Add(ctx, 2)
	obs.Counter(observability.MetricGraphNodeCount).Add(ctx, 3)

	if got := obs.CounterValue(observability.MetricGraphNodeCount); got != 5 {
		t.Errorf("CounterValue() = %d, want 5", got)
	}
	if got := obs.CounterValue("missing"); got != 0 {
		t.Errorf("CounterValue(missing) = %d, want 0", got)
	}

	obs.Histogram(observability.MetricGraphNodeDuration).Record(ctx, 0.25)
	obs.Histogram(observability.MetricGraphNodeDuration).Record(ctx, 0.5)
	if got := obs.HistogramCount(observability.MetricGraphNodeDuration); got != 2 {
		t.Errorf("HistogramCount() = %d, want 2", got)
	}

	if !strings.Contains(buf.String(), "total=5") || !strings.Contains(buf.String(), "mean=0.375") {
		t.Errorf("expected metric totals in output, got: %s", buf.String())
	}
}

func TestObserver_LogLevels(t *testing.T) {
	obs, buf := newTestObserver(slog.LevelInfo)
	ctx := context.Background()

	obs.Trace(ctx, "trace message")
	obs.Debug(ctx, "debug message")
	obs.Info(ctx, "info message", observability.String("thread", "t1"))
	obs.Warn(ctx, "warn message")
	obs.Error(ctx, "error message")

	output := buf.String()
	for _, hidden := range []string{"trace message", "debug message"} {
		if strings.Contains(output, hidden) {
			t.Errorf("%q should be filtered at INFO", hidden)
		}
	}
	for _, shown := range []string{"info message", "thread=t1", "warn message", "error message"} {
		if !strings.Contains(output, shown) {
			t.Errorf("expected %q in output, got: %s", shown, output)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"debug+2", slog.LevelDebug + 2},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if err != nil {
				t.Fatalf("ParseLevel(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseLevel("verbose"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("ParseLevel(verbose) error = %v, want ErrUnknownLevel", err)
	}
}

func TestLevelFromEnv(t *testing.T) {
	env := map[string]string{}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	if got := LevelFromEnv(lookup); got != slog.LevelInfo {
		t.Errorf("default level = %v, want INFO", got)
	}

	env["LOG_LEVEL"] = "error"
	if got := LevelFromEnv(lookup); got != slog.LevelError {
		t.Errorf("LOG_LEVEL fallback = %v, want ERROR", got)
	}

	env["CHATFLOW_LOG_LEVEL"] = "debug"
	if got := LevelFromEnv(lookup); got != slog.LevelDebug {
		t.Errorf("CHATFLOW_LOG_LEVEL = %v, want DEBUG", got)
	}

	env["CHATFLOW_LOG_LEVEL"] = "loud"
	if got := LevelFromEnv(lookup); got != slog.LevelInfo {
		t.Errorf("unparsable level = %v, want INFO", got)
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	New(NewLogger(&buf, LevelTrace, false)).Trace(context.Background(), "deep detail")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace record not labelled TRACE: %s", buf.String())
	}

	buf.Reset()
	New(NewLogger(&buf, slog.LevelInfo, true)).Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), `"level":"INFO"`) {
		t.Errorf("JSON output missing level: %s", buf.String())
	}
}
