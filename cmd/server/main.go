// Package main is the entry point for the Smart Bookmarks backend service.
//
// The main package stays minimal. Its job is to:
// 1. Read configuration (BOOKMARKS_* env vars, optional .env)
// 2. Create the logger
// 3. Build and start the server
//
// All actual logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/smart-bookmarks/internal/config"
	"github.com/sakif/smart-bookmarks/internal/logging"
	"github.com/sakif/smart-bookmarks/internal/server"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	// Ensure the SQLite file's directory exists (like `mkdir -p`).
	if cfg.DBDriver == "sqlite" && cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			logger.Error("failed to create data directory", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Startup talks to Google, the database and Redis; bound it.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	srv, err := server.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
