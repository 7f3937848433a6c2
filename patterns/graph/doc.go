// Package graph runs conversational workflows: directed, possibly cyclic
// graphs of nodes that share one conversation state.
//
// Every graph has two reserved nodes, START and END. A run begins at START
// and repeatedly visits the current node, folds the node's output into the
// transcript and routes along its edges until it visits END, reaches a node
// without a usable edge, or exhausts its iteration budget.
//
// What a node does is decided by its [Kind]:
//   - [KindCompletion] asks the model for the next assistant message
//   - [KindToolCallCompletion] does the same with tools advertised and routes
//     to the tool the model called
//   - [KindRouter] lets the model pick one of its conditional targets
//   - [KindTool] answers pending tool calls
//   - [KindWebhook] posts the conversation somewhere and changes nothing
//
// Behaviors are bound from a [Registry] when a node is added, so a graph can
// be stored as a plain [Document] and loaded back with [Graph.Load] or a
// [SnapshotStore]. Conditional edges may carry an expr-lang expression that
// survives the round trip (see [ExprCondition]).
//
// Routing rules, in order:
//  1. conditional edges: the first condition naming an existing node wins
//  2. unconditional edges: the first existing target wins
//  3. otherwise the run stops at a dead end
//
// Every state change can be observed through [Graph.OnStateChange] or the
// shared [Emitter]; [FormatSSE] turns a [Snapshot] into a Server-Sent Events
// frame.
//
// Example:
//
//	registry := graph.NewRegistry(openai.New())
//	g := graph.New(registry, graph.WithNodeTimeout(time.Minute))
//	if err := g.Default(); err != nil {
//	    return err
//	}
//	prompt := ai.UserMessage("hola")
//	result, err := g.Run(ctx, graph.RunInput{Prompt: &prompt, ThreadID: chatID})
//	fmt.Println(result.Output, result.Termination)
package graph
