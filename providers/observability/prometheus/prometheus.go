// Package prometheus exports chatflow metrics through client_golang while
// delegating tracing and logging to another observability provider.
package prometheus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leofalp/chatflow/providers/observability"
)

// DefaultLabels lists the label keys each known metric is registered with.
// Attributes outside this set are dropped; missing ones are exported as "".
var DefaultLabels = map[string][]string{
	observability.MetricGraphNodeCount:    {observability.AttrGraphNodeKind, observability.AttrGraphNodeStatus},
	observability.MetricGraphNodeDuration: {observability.AttrGraphNodeKind},
	observability.MetricGraphRunCount:     {observability.AttrGraphTermination},
	observability.MetricGraphRunDuration:  {observability.AttrGraphTermination},
}

// Provider combines Prometheus metrics with the tracer and logger of a
// delegate provider.
type Provider struct {
	delegate   observability.Provider
	registerer prometheus.Registerer
	labels     map[string][]string

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

var _ observability.Provider = (*Provider)(nil)

// New builds a Provider registering its collectors on registerer
// (prometheus.DefaultRegisterer when nil). Tracing and logging calls are
// forwarded to delegate.
func New(delegate observability.Provider, registerer prometheus.Registerer) *Provider {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Provider{
		delegate:   delegate,
		registerer: registerer,
		labels:     DefaultLabels,
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
}

// WithLabels overrides the label keys used for a metric. It must be called
// before the metric is first used.
func (p *Provider) WithLabels(metric string, keys ...string) *Provider {
	labels := make(map[string][]string, len(p.labels)+1)
	for name, existing := range p.labels {
		labels[name] = existing
	}
	labels[metric] = keys
	p.labels = labels
	return p
}

func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	return p.delegate.StartSpan(ctx, name, attrs...)
}

func (p *Provider) Counter(name string) observability.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.counters[name]; ok {
		return existing
	}

	keys := p.labels[name]
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName(name) + "_total",
		Help: fmt.Sprintf("Total of %s", name),
	}, sanitizeAll(keys))
	vec = registerOrExisting(p.registerer, vec)

	created := &counter{vec: vec, keys: keys}
	p.counters[name] = created
	return created
}

func (p *Provider) Histogram(name string) observability.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.histograms[name]; ok {
		return existing
	}

	keys := p.labels[name]
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    metricName(name) + "_seconds",
		Help:    fmt.Sprintf("Distribution of %s", name),
		Buckets: prometheus.DefBuckets,
	}, sanitizeAll(keys))
	vec = registerOrExisting(p.registerer, vec)

	created := &histogram{vec: vec, keys: keys}
	p.histograms[name] = created
	return created
}

func (p *Provider) Trace(ctx context.Context, msg string, attrs ...observability.Attribute) {
	p.delegate.Trace(ctx, msg, attrs...)
}

func (p *Provider) Debug(ctx context.Context, msg string, attrs ...observability.Attribute) {
	p.delegate.Debug(ctx, msg, attrs...)
}

func (p *Provider) Info(ctx context.Context, msg string, attrs ...observability.Attribute) {
	p.delegate.Info(ctx, msg, attrs...)
}

func (p *Provider) Warn(ctx context.Context, msg string, attrs ...observability.Attribute) {
	p.delegate.Warn(ctx, msg, attrs...)
}

func (p *Provider) Error(ctx context.Context, msg string, attrs ...observability.Attribute) {
	p.delegate.Error(ctx, msg, attrs...)
}

type counter struct {
	vec  *prometheus.CounterVec
	keys []string
}

func (c *counter) Add(_ context.Context, value int64, attrs ...observability.Attribute) {
	c.vec.WithLabelValues(labelValues(c.keys, attrs)...).Add(float64(value))
}

type histogram struct {
	vec  *prometheus.HistogramVec
	keys []string
}

func (h *histogram) Record(_ context.Context, value float64, attrs ...observability.Attribute) {
	h.vec.WithLabelValues(labelValues(h.keys, attrs)...).Observe(value)
}

// registerOrExisting registers collector, returning the collector already
// registered under the same descriptor when there is one.
func registerOrExisting[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

func labelValues(keys []string, attrs []observability.Attribute) []string {
	values := make([]string, len(keys))
	for i, key := range keys {
		for _, attr := range attrs {
			if attr.Key == key {
				values[i] = fmt.Sprint(attr.Value)
			}
		}
	}
	return values
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func sanitizeAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = metricName(key)
	}
	return out
}
