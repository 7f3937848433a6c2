// Package inmemory keeps chat transcripts in process memory. It is what the
// CLI and tests use; nothing survives a restart.
package inmemory
