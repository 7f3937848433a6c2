package observability

// Attribute keys and metric names shared by the graph executor, the model
// providers and the HTTP service. Keep them stable: dashboards and the
// Prometheus label set are built from them.

// Model calls.
const (
	AttrLLMProvider     = "llm.provider"
	AttrLLMModel        = "llm.model"
	AttrLLMResponseID   = "llm.response.id"
	AttrLLMFinishReason = "llm.finish_reason"
	AttrLLMTokensTotal  = "llm.tokens.total" // #nosec G101 -- model tokens, not credentials
)

// Graph runs. AttrGraphIteration is 1-based; AttrGraphTermination carries a
// graph.Termination value.
const (
	AttrGraphNodeID      = "graph.node.id"
	AttrGraphNodeKind    = "graph.node.kind"
	AttrGraphNodeStatus  = "graph.node.status"
	AttrGraphIteration   = "graph.iteration"
	AttrGraphTermination = "graph.termination"
	AttrGraphThreadID    = "graph.thread_id"
	AttrGraphNextNode    = "graph.next_node"
)

// Tools.
const (
	AttrToolName   = "tool.name"
	AttrToolCallID = "tool.call_id"
)

// Outbound and inbound HTTP.
const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
)

// Generic.
const (
	AttrError             = "error"
	AttrStatus            = "status"
	AttrStatusDescription = "status_description"
	AttrDuration          = "duration"
)

// Metrics. Durations are recorded in seconds.
const (
	MetricGraphNodeDuration = "chatflow.graph.node.duration"
	MetricGraphNodeCount    = "chatflow.graph.node.count"
	MetricGraphRunDuration  = "chatflow.graph.run.duration"
	MetricGraphRunCount     = "chatflow.graph.run.count"

	MetricLLMRequestDuration = "chatflow.llm.request.duration"
	MetricLLMRequestFailures = "chatflow.llm.request.failures"
	MetricLLMTokens          = "chatflow.llm.tokens"
)
