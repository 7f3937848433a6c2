package slog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leofalp/chatflow/providers/observability"
)

// LevelTrace sits below Debug and is filtered out unless explicitly enabled.
const LevelTrace = slog.LevelDebug - 4

// Observer implements observability.Provider on top of log/slog. Spans are
// emitted as start/end log records and metrics are kept as in-process totals
// that are logged on every update.
type Observer struct {
	logger  *slog.Logger
	metrics *metricsStore
}

// New creates a new slog-based observer. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		logger:  logger,
		metrics: newMetricsStore(),
	}
}

var _ observability.Provider = (*Observer)(nil)

// Logger exposes the underlying slog logger.
func (o *Observer) Logger() *slog.Logger {
	return o.logger
}

// --- TRACING ---

// StartSpan logs the span start and returns a context carrying the span so
// nested helpers can add events through observability.SpanFromContext.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &logSpan{
		name:      name,
		startTime: time.Now(),
		logger:    o.logger,
		attrs:     append([]observability.Attribute(nil), attrs...),
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "span started",
		append([]slog.Attr{slog.String("span", name), slog.String("event", "span.start")}, toSlogAttrs(attrs)...)...)

	return observability.ContextWithSpan(ctx, span), span
}

type logSpan struct {
	mu        sync.Mutex
	name      string
	startTime time.Time
	logger    *slog.Logger
	attrs     []observability.Attribute
	status    observability.StatusCode
	ended     bool
}

// End logs the span duration with every attribute collected so far. Only the
// first call has an effect.
func (s *logSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true

	level := slog.LevelInfo
	if s.status == observability.StatusError {
		level = slog.LevelWarn
	}
	logAttrs := []slog.Attr{
		slog.String("span", s.name),
		slog.String("event", "span.end"),
		slog.Duration("duration", time.Since(s.startTime)),
	}
	s.logger.LogAttrs(context.Background(), level, "span ended", append(logAttrs, toSlogAttrs(s.attrs)...)...)
}

func (s *logSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

func (s *logSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = code
	s.attrs = append(s.attrs, observability.String(observability.AttrStatus, code.String()))
	if description != "" {
		s.attrs = append(s.attrs, observability.String(observability.AttrStatusDescription, description))
	}
}

func (s *logSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = append(s.attrs, observability.Error(err))
	s.logger.LogAttrs(context.Background(), slog.LevelError, "span error",
		slog.String("span", s.name),
		slog.String("event", "error"),
		slog.String("error", err.Error()),
	)
}

func (s *logSpan) AddEvent(name string, attrs ...observability.Attribute) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "span event",
		append([]slog.Attr{slog.String("span", s.name), slog.String("event", name)}, toSlogAttrs(attrs)...)...)
}

// --- METRICS ---

// Metrics are running totals kept in process and echoed at debug level on
// every update. They are meant for the CLI and tests; serve uses the
// Prometheus provider.

func (o *Observer) Counter(name string) observability.Counter {
	return o.metrics.counters.get(name, func() *logCounter {
		return &logCounter{name: name, logger: o.logger}
	})
}

func (o *Observer) Histogram(name string) observability.Histogram {
	return o.metrics.histograms.get(name, func() *logHistogram {
		return &logHistogram{name: name, logger: o.logger}
	})
}

// CounterValue returns the total of a counter, 0 when it was never used.
func (o *Observer) CounterValue(name string) int64 {
	counter, ok := o.metrics.counters.lookup(name)
	if !ok {
		return 0
	}
	counter.mu.Lock()
	defer counter.mu.Unlock()
	return counter.value
}

// HistogramCount returns how many observations a histogram received.
func (o *Observer) HistogramCount(name string) int {
	histogram, ok := o.metrics.histograms.lookup(name)
	if !ok {
		return 0
	}
	histogram.mu.Lock()
	defer histogram.mu.Unlock()
	return histogram.count
}

type metricsStore struct {
	counters   instruments[*logCounter]
	histograms instruments[*logHistogram]
}

func newMetricsStore() *metricsStore {
	return &metricsStore{}
}

// instruments is a lazily filled name to instrument map.
type instruments[T any] struct {
	mu     sync.Mutex
	byName map[string]T
}

func (in *instruments[T]) get(name string, create func() T) T {
	in.mu.Lock()
	defer in.mu.Unlock()
	if instrument, ok := in.byName[name]; ok {
		return instrument
	}
	if in.byName == nil {
		in.byName = make(map[string]T)
	}
	instrument := create()
	in.byName[name] = instrument
	return instrument
}

func (in *instruments[T]) lookup(name string) (T, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	instrument, ok := in.byName[name]
	return instrument, ok
}

type logCounter struct {
	name   string
	logger *slog.Logger
	mu     sync.Mutex
	value  int64
}

func (c *logCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	c.mu.Lock()
	c.value += value
	total := c.value
	c.mu.Unlock()

	c.logger.LogAttrs(ctx, slog.LevelDebug, "metric",
		metricAttrs(c.name, attrs, slog.Int64("total", total), slog.Int64("delta", value))...)
}

type logHistogram struct {
	name   string
	logger *slog.Logger
	mu     sync.Mutex
	count  int
	sum    float64
}

func (h *logHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.mu.Lock()
	h.count++
	h.sum += value
	count, mean := h.count, h.sum/float64(h.count)
	h.mu.Unlock()

	h.logger.LogAttrs(ctx, slog.LevelDebug, "metric",
		metricAttrs(h.name, attrs, slog.Float64("value", value), slog.Int("count", count), slog.Float64("mean", mean))...)
}

func metricAttrs(name string, attrs []observability.Attribute, values ...slog.Attr) []slog.Attr {
	out := append([]slog.Attr{slog.String("metric", name)}, values...)
	return append(out, toSlogAttrs(attrs)...)
}

// --- LOGGING ---

func (o *Observer) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, LevelTrace, msg, toSlogAttrs(attrs)...)
}

func (o *Observer) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelDebug, msg, toSlogAttrs(attrs)...)
}

func (o *Observer) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelInfo, msg, toSlogAttrs(attrs)...)
}

func (o *Observer) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelWarn, msg, toSlogAttrs(attrs)...)
}

func (o *Observer) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	o.logger.LogAttrs(ctx, slog.LevelError, msg, toSlogAttrs(attrs)...)
}

func toSlogAttrs(attrs []observability.Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, slog.Any(attr.Key, attr.Value))
	}
	return out
}
