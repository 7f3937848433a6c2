// Package parse turns raw language-model text into Go values. Models often
// wrap JSON in markdown fences or emit slightly malformed objects (single
// quotes, unquoted keys, trailing commas), so [ParseStringAs] strips fences
// and falls back to jsonrepair before giving up.
package parse
