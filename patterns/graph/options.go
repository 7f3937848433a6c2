package graph

import (
	"time"

	"github.com/leofalp/chatflow/providers/observability"
)

// DefaultMaxIterations caps node visits per run when neither the graph nor
// the run input sets a limit.
const DefaultMaxIterations = 6

// Option is a functional option for configuring Graph behavior.
type Option func(*graphConfig)

// EdgeOption configures a conditional edge added with AddConditionalEdge.
type EdgeOption func(*ConditionalEdge)

type graphConfig struct {
	maxIterations   int
	nodeTimeout     time.Duration
	failurePolicies map[Kind]FailurePolicy
	observer        observability.Provider
	emitter         *Emitter
}

func defaultConfig() graphConfig {
	return graphConfig{
		maxIterations:   DefaultMaxIterations,
		failurePolicies: make(map[Kind]FailurePolicy),
	}
}

func (config graphConfig) policyFor(kind Kind) FailurePolicy {
	if policy, ok := config.failurePolicies[kind]; ok {
		return policy
	}
	return FailureContinue
}

// FailureMode selects what a run does when a node action returns an error.
type FailureMode string

const (
	// FailureModeContinue logs the failure, skips folding and keeps routing.
	FailureModeContinue FailureMode = "continue"
	// FailureModeHalt stops the run and returns a *NodeError.
	FailureModeHalt FailureMode = "halt"
	// FailureModeRetry re-runs the action, then continues if every attempt failed.
	FailureModeRetry FailureMode = "retry"
)

// FailurePolicy is the per-kind answer to a failing node action.
type FailurePolicy struct {
	Mode     FailureMode
	Attempts int
	Backoff  time.Duration
}

var (
	// FailureContinue keeps the conversation alive past a failed node. It is the default.
	FailureContinue = FailurePolicy{Mode: FailureModeContinue}

	// FailureHalt aborts the run on the first failure.
	FailureHalt = FailurePolicy{Mode: FailureModeHalt}
)

// FailureRetry runs a failing action up to attempts times in total, sleeping
// backoff times the attempt number between tries.
func FailureRetry(attempts int, backoff time.Duration) FailurePolicy {
	if attempts < 1 {
		attempts = 1
	}
	return FailurePolicy{Mode: FailureModeRetry, Attempts: attempts, Backoff: backoff}
}

// WithMaxIterations sets the default iteration cap of every run. RunInput
// can still override it per run. Values below 1 are ignored.
//
// Example:
//
//	g := graph.New(registry, graph.WithMaxIterations(10))
func WithMaxIterations(maxIterations int) Option {
	return func(config *graphConfig) {
		if maxIterations > 0 {
			config.maxIterations = maxIterations
		}
	}
}

// WithNodeTimeout bounds every node action and condition evaluation. A
// timed-out action counts as a failed node. Zero (default) means no timeout.
//
// Example:
//
//	g := graph.New(registry, graph.WithNodeTimeout(45*time.Second))
func WithNodeTimeout(timeout time.Duration) Option {
	return func(config *graphConfig) {
		config.nodeTimeout = timeout
	}
}

// WithFailurePolicy sets the failure policy for nodes of kind.
//
// Example:
//
//	g := graph.New(registry,
//	    graph.WithFailurePolicy(graph.KindTool, graph.FailureRetry(3, time.Second)),
//	    graph.WithFailurePolicy(graph.KindWebhook, graph.FailureHalt),
//	)
func WithFailurePolicy(kind Kind, policy FailurePolicy) Option {
	return func(config *graphConfig) {
		config.failurePolicies[kind] = policy
	}
}

// WithObserver enables spans, metrics and logs for runs. When unset, the
// observer attached to the run context (observability.ContextWithObserver)
// is used, if any.
func WithObserver(provider observability.Provider) Option {
	return func(config *graphConfig) {
		config.observer = provider
	}
}

// WithEmitter shares an Emitter between graphs, e.g. to fan every agent's
// updates into one SSE hub.
func WithEmitter(emitter *Emitter) Option {
	return func(config *graphConfig) {
		config.emitter = emitter
	}
}

// WithLabel sets the label of a conditional edge.
func WithLabel(label string) EdgeOption {
	return func(edge *ConditionalEdge) {
		edge.Label = label
	}
}

// WithExpression records the expression the condition was compiled from so
// it survives a save and load.
func WithExpression(expression string) EdgeOption {
	return func(edge *ConditionalEdge) {
		edge.Expression = expression
	}
}

// WithEdgeMetadata attaches metadata to a conditional edge.
func WithEdgeMetadata(metadata map[string]any) EdgeOption {
	return func(edge *ConditionalEdge) {
		edge.Metadata = metadata
	}
}
