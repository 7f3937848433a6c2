// Package tool defines the Tool interface used by tool and tool-call nodes,
// plus Func, a typed tool built from a plain Go function whose argument
// schema is derived by reflection.
//
// Concrete tools live in sub-packages: redirect hands a conversation over to
// a human, webfetch reads a web page as Markdown, webhook posts the run state
// to an external endpoint.
package tool
