// Package ai defines the shared, provider-agnostic types used to talk to a
// language model: role-tagged [Message] values, the [ChatRequest] sent to a
// provider and the [ChatResponse] it returns with zero or more choices.
//
// The central interface is [Provider]. Concrete implementations live in
// sub-packages (see providers/ai/openai) and map these types to their own
// wire format, keeping the graph executor decoupled from any vendor.
package ai
