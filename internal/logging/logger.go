// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the service logger.
// - env=prod: JSON handler without source locations
// - anything else: text handler with source locations
// level is one of debug/info/warn/error; unknown values mean info.
func NewLogger(env, level string) *slog.Logger {
	return newLogger(os.Stdout, env, level).With("service", "followups")
}

// NewStderrLogger is NewLogger for command-line tools whose stdout carries
// results.
func NewStderrLogger(env, level string) *slog.Logger {
	return newLogger(os.Stderr, env, level).With("service", "followups")
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	opts.AddSource = true
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
