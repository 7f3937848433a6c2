package slog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrUnknownLevel is returned by ParseLevel for a name it does not know.
var ErrUnknownLevel = errors.New("unknown log level")

// Environment variables consulted by LevelFromEnv, in order.
var levelEnvVars = []string{"CHATFLOW_LOG_LEVEL", "LOG_LEVEL"}

// ParseLevel accepts "trace", "warning" and every name slog.Level itself
// parses ("debug", "info", "warn", "error", with offsets such as
// "debug+2"), case-insensitively.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w %q", ErrUnknownLevel, name)
	}
	return level, nil
}

// LevelFromEnv reads CHATFLOW_LOG_LEVEL, then LOG_LEVEL, through lookup
// (os.LookupEnv in production). Unset or unparsable values mean INFO.
func LevelFromEnv(lookup func(string) (string, bool)) slog.Level {
	for _, key := range levelEnvVars {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if level, err := ParseLevel(raw); err == nil {
			return level
		}
		return slog.LevelInfo
	}
	return slog.LevelInfo
}

// NewLogger builds a logger writing to w, as JSON for deployed services or
// as text for terminals. Records at LevelTrace are labelled TRACE.
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: renameTrace}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func renameTrace(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 || attr.Key != slog.LevelKey {
		return attr
	}
	if level, ok := attr.Value.Any().(slog.Level); ok && level <= LevelTrace {
		attr.Value = slog.StringValue("TRACE")
	}
	return attr
}
