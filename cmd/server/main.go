// Package main is the entry point for the code sandbox HTTP server.
//
// main stays minimal:
//  1. Read configuration (.env + environment)
//  2. Build the logger
//  3. Clear out workspaces left behind by a previous crash
//  4. Start the server
//
// All actual logic lives in internal/.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/code-sandbox/internal/config"
	"github.com/sakif/code-sandbox/internal/logging"
	"github.com/sakif/code-sandbox/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Nothing is running yet, so anything older than SweepAge is an orphan.
	srv.Sandbox().Workspaces.Sweep(cfg.SweepAge)

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
