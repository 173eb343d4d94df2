// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Command cprd serves the task lifecycle streaming gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zeeeepa/CPR/config"
	"github.com/Zeeeepa/CPR/server"
	"github.com/Zeeeepa/CPR/server/task"
	"github.com/Zeeeepa/CPR/server/thread"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cprd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, task.NewRegistry(), thread.NewInMemoryStore(),
		server.WithLogger(logger),
	)
	return srv.Run(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
