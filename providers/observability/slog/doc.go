// Package slog provides an observability.Provider backed by log/slog.
//
// Spans become "span started"/"span ended" records, metrics are kept as
// in-process totals logged at DEBUG, and the log level is read from
// CHATFLOW_LOG_LEVEL or LOG_LEVEL.
package slog
