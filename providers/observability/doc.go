// Package observability defines the vendor-neutral tracing, metrics and
// logging interfaces used across chatflow, plus the attribute helpers and
// semantic-convention names they share. Implementations live in
// sub-packages: slog for logs and lightweight spans, prometheus for metrics.
//
// A nil Provider means observability is disabled; callers nil-check before
// recording.
package observability
