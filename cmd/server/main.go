// Package main is the entry point for the forum server.
//
// main stays minimal: load configuration, build the logger, hand both to
// internal/server. Everything else lives in internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/rotos-forum/internal/config"
	"github.com/sakif/rotos-forum/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	// .env, then config.yaml, then FORUM_* environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	// Validate has already checked the level.
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// === 3. DATA DIRECTORY ===
	// Like `mkdir -p`; SQLite creates the file but not its directory.
	if cfg.Database.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if cfg.GitHub.ClientID == "" || cfg.GitHub.ClientSecret == "" {
		logger.Warn("GitHub OAuth credentials not set; sign-in will fail")
	}

	// === 4. SERVE ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
