// Copyright 2026 The Agentdeck Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the structured logger used by agentdeck commands.
// Level is one of "debug", "info", "warn", "error"; format is "text",
// "json", or "auto". With "auto", stderr on a terminal gets
// slog.TextHandler for human-readable output, while piped or redirected
// stderr (scripts, CI) gets slog.JSONHandler for machine-parseable
// output. Unrecognized values fall back to "info" and "auto"; flag
// validation happens before this is called.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewLogger(cfg.Log.Level, cfg.Log.Format).With(
//	    "command", "watch",
//	    "endpoint", server.Endpoint,
//	)
func NewLogger(level, format string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, options)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, options)
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			handler = slog.NewTextHandler(os.Stderr, options)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, options)
		}
	}
	return slog.New(handler)
}
