package graph

import (
	"context"
	"time"

	"github.com/leofalp/chatflow/internal/utils"
	"github.com/leofalp/chatflow/providers/observability"
)

const (
	// spanGraphRun is the span name for one run.
	spanGraphRun = "graph.run"

	// spanGraphNodeExecute is the span name for one node visit.
	spanGraphNodeExecute = "graph.node.execute"
)

// observerState holds the provider and root span of the current run.
type observerState struct {
	// provider is nil when observability is disabled.
	provider observability.Provider

	rootSpan observability.Span
	started  time.Time
}

func (graph *Graph) observeRunStart(ctx context.Context, input RunInput, maxIterations int) (context.Context, *observerState) {
	state := &observerState{provider: graph.config.observer, started: time.Now()}
	if state.provider == nil {
		state.provider = observability.ObserverFromContext(ctx)
	}
	if state.provider == nil {
		return ctx, state
	}

	ctx, state.rootSpan = state.provider.StartSpan(ctx, spanGraphRun,
		observability.String(observability.AttrGraphThreadID, input.ThreadID),
		observability.Int("graph.max_iterations", maxIterations),
	)
	ctx = observability.ContextWithSpan(ctx, state.rootSpan)
	ctx = observability.ContextWithObserver(ctx, state.provider)

	state.provider.Info(ctx, "graph run started",
		observability.String(observability.AttrGraphThreadID, input.ThreadID),
		observability.Int("graph.messages", len(input.Messages)),
	)
	return ctx, state
}

func (observer *observerState) runFinished(ctx context.Context, result *RunResult, runErr error) {
	if observer.provider == nil {
		return
	}
	duration := time.Since(observer.started)
	termination := observability.String(observability.AttrGraphTermination, string(result.Termination))

	observer.provider.Histogram(observability.MetricGraphRunDuration).Record(ctx, duration.Seconds(), termination)
	observer.provider.Counter(observability.MetricGraphRunCount).Add(ctx, 1, termination)

	attrs := []observability.Attribute{
		termination,
		observability.Int(observability.AttrGraphIteration, result.Iterations),
		observability.Duration(observability.AttrDuration, duration),
	}

	switch {
	case runErr != nil:
		observer.provider.Error(ctx, "graph run failed", append(attrs, observability.Error(runErr))...)
	case result.Termination == TerminationBudgetExhausted:
		observer.provider.Warn(ctx, "graph run stopped at iteration cap", attrs...)
	case result.Termination == TerminationDeadEnd:
		observer.provider.Warn(ctx, "graph run reached a dead end", attrs...)
	default:
		observer.provider.Info(ctx, "graph run completed", append(attrs,
			observability.String("graph.output", utils.TruncateString(result.Output, 100)))...)
	}

	if observer.rootSpan != nil {
		observer.rootSpan.SetAttributes(attrs...)
		if runErr != nil {
			observer.rootSpan.RecordError(runErr)
			observer.rootSpan.SetStatus(observability.StatusError, "graph run failed")
		} else {
			observer.rootSpan.SetStatus(observability.StatusOK, string(result.Termination))
		}
		observer.rootSpan.End()
	}
}

// nodeStarted opens the node span and returns the context carrying it.
func (observer *observerState) nodeStarted(ctx context.Context, node *Node, iteration, attempt int) context.Context {
	if observer.provider == nil {
		return ctx
	}
	ctx, span := observer.provider.StartSpan(ctx, spanGraphNodeExecute,
		observability.String(observability.AttrGraphNodeID, node.ID),
		observability.String(observability.AttrGraphNodeKind, node.Kind.String()),
		observability.Int(observability.AttrGraphIteration, iteration),
		observability.Int("graph.node.attempt", attempt),
	)
	ctx = observability.ContextWithSpan(ctx, span)

	observer.provider.Debug(ctx, "node execution started",
		observability.String(observability.AttrGraphNodeID, node.ID),
		observability.Int(observability.AttrGraphIteration, iteration),
	)
	return ctx
}

func (observer *observerState) nodeFinished(ctx context.Context, node *Node, duration time.Duration, nodeErr error) {
	if observer.provider == nil {
		return
	}
	status := "ok"
	if nodeErr != nil {
		status = "failed"
	}
	kind := observability.String(observability.AttrGraphNodeKind, node.Kind.String())

	observer.provider.Histogram(observability.MetricGraphNodeDuration).Record(ctx, duration.Seconds(), kind)
	observer.provider.Counter(observability.MetricGraphNodeCount).Add(ctx, 1,
		kind, observability.String(observability.AttrGraphNodeStatus, status))

	attrs := []observability.Attribute{
		observability.String(observability.AttrGraphNodeID, node.ID),
		observability.String(observability.AttrGraphNodeStatus, status),
		observability.Duration(observability.AttrDuration, duration),
	}
	if nodeErr != nil {
		observer.provider.Error(ctx, "node execution failed", append(attrs, observability.Error(nodeErr))...)
	} else {
		observer.provider.Debug(ctx, "node execution completed", attrs...)
	}

	if span := observability.SpanFromContext(ctx); span != nil {
		span.SetAttributes(attrs...)
		if nodeErr != nil {
			span.RecordError(nodeErr)
			span.SetStatus(observability.StatusError, "node failed")
		} else {
			span.SetStatus(observability.StatusOK, "node completed")
		}
		span.End()
	}
}

func (observer *observerState) routed(ctx context.Context, from, to string) {
	if observer.provider == nil {
		return
	}
	observer.provider.Debug(ctx, "graph routed",
		observability.String(observability.AttrGraphNodeID, from),
		observability.String(observability.AttrGraphNextNode, to),
	)
}

func (observer *observerState) conditionFailed(ctx context.Context, node *Node, err error) {
	if observer.provider == nil {
		return
	}
	observer.provider.Warn(ctx, "condition evaluation failed, terminating route",
		observability.String(observability.AttrGraphNodeID, node.ID),
		observability.Error(err),
	)
}
