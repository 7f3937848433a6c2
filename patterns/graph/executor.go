package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/leofalp/chatflow/providers/ai"
)

// Run executes the graph from START until END, a dead end, the iteration
// cap or cancellation of ctx. One EventStateUpdated is emitted per node
// transition and one when the run ends.
//
// Only structural problems (no START, an id that stops resolving), a node
// failing under FailureHalt, and cancellation are returned as errors. Every
// other outcome is described by RunResult.Termination.
func (graph *Graph) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	return graph.run(ctx, input, false)
}

// StreamEvents behaves like Run but emits EventStateUpdated after every
// state mutation: run setup, node activation and deactivation, transcript
// folds, routing and the end of the run.
func (graph *Graph) StreamEvents(ctx context.Context, input RunInput) (*RunResult, error) {
	return graph.run(ctx, input, true)
}

func (graph *Graph) run(ctx context.Context, input RunInput, stream bool) (*RunResult, error) {
	graph.runMu.Lock()
	defer graph.runMu.Unlock()

	if !graph.HasNode(StartID) {
		return nil, ErrMissingEntryNode
	}

	maxIterations := graph.config.maxIterations
	if input.MaxIterations > 0 {
		maxIterations = input.MaxIterations
	}

	ctx, observer := graph.observeRunStart(ctx, input, maxIterations)

	graph.setup(input)
	if stream {
		graph.notify()
	}

	termination, visits, runErr := graph.loop(ctx, observer, maxIterations, stream)

	graph.mu.Lock()
	graph.state.Active = false
	graph.mu.Unlock()
	graph.notify()

	result := graph.result(termination, visits)
	observer.runFinished(ctx, result, runErr)
	return result, runErr
}

// setup initializes the run-scoped part of the state. Thread id, prompt and
// metadata come from input alone; metadata is layered over the loaded
// document's. The transcript carries over unless input.Messages is set.
func (graph *Graph) setup(input RunInput) {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	if input.Messages != nil {
		graph.state.Messages = slices.Clone(input.Messages)
	}
	graph.state.Prompt = nil
	if input.Prompt != nil {
		prompt := *input.Prompt
		graph.state.Prompt = &prompt
		graph.state.Messages = append(graph.state.Messages, prompt)
	}
	graph.state.Metadata = maps.Clone(graph.metadata)
	if graph.state.Metadata == nil {
		graph.state.Metadata = map[string]any{}
	}
	maps.Copy(graph.state.Metadata, input.Metadata)
	graph.state.ThreadID = input.ThreadID
	graph.state.Active = true
	graph.state.CurrentNodeID = StartID

	for _, node := range graph.nodes {
		node.Visited = false
		node.IsActive = false
	}
}

// loop walks the graph and reports how the walk ended together with the
// number of nodes visited.
func (graph *Graph) loop(ctx context.Context, observer *observerState, maxIterations int, stream bool) (Termination, int, error) {
	visits := 0
	for {
		if err := ctx.Err(); err != nil {
			return TerminationCanceled, visits, fmt.Errorf("graph run canceled: %w", err)
		}

		node, view, err := graph.activate()
		if err != nil {
			return TerminationDeadEnd, visits, err
		}
		visits++
		if stream {
			graph.notify()
		}

		result, attempts, nodeErr := graph.visit(ctx, observer, node, view, visits)

		graph.deactivate(node.ID)
		if stream {
			graph.notify()
		}

		if nodeErr != nil {
			if graph.config.policyFor(node.Kind).Mode == FailureModeHalt {
				return TerminationHalted, visits, &NodeError{NodeID: node.ID, Kind: node.Kind, Attempts: attempts, Err: nodeErr}
			}
		} else if graph.fold(node, result) && stream {
			graph.notify()
		}

		if node.ID == EndID {
			return TerminationEnd, visits, nil
		}
		if visits >= maxIterations {
			return TerminationBudgetExhausted, visits, nil
		}

		next := graph.nextNodeID(ctx, observer, node, graph.view())
		observer.routed(ctx, node.ID, next)

		graph.mu.Lock()
		graph.state.CurrentNodeID = next
		graph.mu.Unlock()
		if stream || next != "" {
			graph.notify()
		}
		if next == "" {
			return TerminationDeadEnd, visits, nil
		}
	}
}

// activate resolves the current node, marks it active and visited, and
// returns copies of the node and the state for the action to work on.
func (graph *Graph) activate() (*Node, *State, error) {
	graph.mu.Lock()
	defer graph.mu.Unlock()

	id := graph.state.CurrentNodeID
	node, ok := graph.lookup(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownNode, id)
	}
	node.IsActive = true
	node.Visited = true
	return node.clone(), graph.state.clone(), nil
}

func (graph *Graph) deactivate(id string) {
	graph.mu.Lock()
	defer graph.mu.Unlock()
	if node, ok := graph.lookup(id); ok {
		node.IsActive = false
	}
}

func (graph *Graph) view() *State {
	graph.mu.RLock()
	defer graph.mu.RUnlock()
	return graph.state.clone()
}

// visit runs the node action under the failure policy of its kind. It
// returns the result of the first successful attempt, or the last error.
func (graph *Graph) visit(ctx context.Context, observer *observerState, node *Node, state *State, iteration int) (Result, int, error) {
	if node.Action == nil {
		return Result{}, 0, nil
	}

	policy := graph.config.policyFor(node.Kind)
	attempts := 1
	if policy.Mode == FailureModeRetry {
		attempts = max(policy.Attempts, 1)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && policy.Backoff > 0 {
			timer := time.NewTimer(policy.Backoff * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{}, attempt - 1, lastErr
			case <-timer.C:
			}
		}

		result, err := graph.attempt(ctx, observer, node, state, iteration, attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
	}
	return Result{}, attempts, lastErr
}

func (graph *Graph) attempt(ctx context.Context, observer *observerState, node *Node, state *State, iteration, attempt int) (Result, error) {
	nodeCtx := observer.nodeStarted(ctx, node, iteration, attempt)
	actionCtx, cancel := graph.withNodeTimeout(nodeCtx)
	defer cancel()

	started := time.Now()
	result, err := node.Action(actionCtx, state.clone(), node.clone())
	observer.nodeFinished(nodeCtx, node, time.Since(started), err)
	return result, err
}

func (graph *Graph) withNodeTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if graph.config.nodeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, graph.config.nodeTimeout)
}

// fold merges a successful result into the transcript and reports whether
// anything was appended.
func (graph *Graph) fold(node *Node, result Result) bool {
	var appended []ai.Message
	switch node.Kind {
	case KindCompletion, KindToolCallCompletion:
		if message, ok := result.Response.FirstMessage(); ok {
			appended = []ai.Message{message}
		}
	case KindTool:
		appended = result.Messages
	}
	if len(appended) == 0 {
		return false
	}

	graph.mu.Lock()
	defer graph.mu.Unlock()
	graph.state.Messages = append(graph.state.Messages, appended...)
	return true
}

// nextNodeID picks the successor of node: the first conditional edge whose
// condition names an existing node, else the first unconditional edge whose
// target exists, else "".
func (graph *Graph) nextNodeID(ctx context.Context, observer *observerState, node *Node, state *State) string {
	for _, edge := range node.ConditionalEdges {
		if edge.Condition == nil {
			continue
		}
		target := graph.evaluate(ctx, observer, edge.Condition, node, state)
		if target != "" && graph.HasNode(target) {
			return target
		}
	}
	for _, edge := range node.Edges {
		if graph.HasNode(edge.To) {
			return edge.To
		}
	}
	return ""
}

func (graph *Graph) evaluate(ctx context.Context, observer *observerState, condition Condition, node *Node, state *State) string {
	conditionCtx, cancel := graph.withNodeTimeout(ctx)
	defer cancel()

	target, err := condition(conditionCtx, state.clone(), node.clone())
	if err != nil {
		observer.conditionFailed(ctx, node, err)
		return Terminate
	}
	return target
}

// notify publishes a snapshot. It must be called without holding mu.
func (graph *Graph) notify() {
	graph.emitter.Emit(EventStateUpdated, graph.State())
}

func (graph *Graph) result(termination Termination, visits int) *RunResult {
	graph.mu.RLock()
	messages := slices.Clone(graph.state.Messages)
	graph.mu.RUnlock()

	result := &RunResult{
		Termination: termination,
		Iterations:  visits,
		Messages:    messages,
	}
	if n := len(messages); n > 0 && messages[n-1].Role == ai.RoleAssistant {
		result.Output = messages[n-1].Content
	}
	return result
}
