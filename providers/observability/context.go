package observability

import "context"

type contextKey int

const (
	spanKey contextKey = iota
	observerKey
)

// ContextWithSpan attaches span to ctx. A nil ctx starts from Background.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	return context.WithValue(orBackground(ctx), spanKey, span)
}

// SpanFromContext returns the span attached by ContextWithSpan, or nil.
func SpanFromContext(ctx context.Context) Span {
	return valueOf[Span](ctx, spanKey)
}

// ContextWithObserver attaches provider to ctx so that code reached from a
// graph run (tools, webhooks, the messenger) reports through the same
// observer without taking it as a parameter.
func ContextWithObserver(ctx context.Context, provider Provider) context.Context {
	return context.WithValue(orBackground(ctx), observerKey, provider)
}

// ObserverFromContext returns the provider attached by ContextWithObserver,
// or nil.
func ObserverFromContext(ctx context.Context) Provider {
	return valueOf[Provider](ctx, observerKey)
}

func valueOf[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	value, _ := ctx.Value(key).(T)
	return value
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
