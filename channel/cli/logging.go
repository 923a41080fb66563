package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/webbmaffian/go-gbl/config"
)

// Logs go to stderr; stdout carries the channel's data.
func setupLogger(cfg config.LogConfig) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler).With(
		"service", "gblfifo",
		"pid", os.Getpid(),
	)
}
