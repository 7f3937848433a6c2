// Package memory defines where chat transcripts live between runs.
//
// A [Provider] holds the messages of one thread; a [Store] opens the
// Provider of any thread id. Every method takes a context and returns an
// error so database-backed implementations can surface failures. The graph
// executor never talks to memory directly: the chat service loads the
// recent history, runs the graph with it and appends the reply.
//
// Implementations live in [github.com/leofalp/chatflow/providers/memory/inmemory]
// and [github.com/leofalp/chatflow/providers/memory/pgmemory].
package memory
