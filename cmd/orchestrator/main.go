// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the MetaDAG orchestrator HTTP server.
//
// This is the main entry point for the containerized service. It reads
// configuration from an optional YAML file and the environment and
// serves until SIGINT or SIGTERM.
//
// # Environment Variables
//
//   - METADAG_CONFIG: Optional YAML config file
//   - OPENAI_API_KEY: Model API key (required)
//   - DEPLOYER_PRIVATE_KEY: Deployer account key (required)
//   - ORCHESTRATOR_PORT: HTTP server port (default: 8000)
//   - MONGO_URI: History store; SQLite is used when empty
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	OPENAI_API_KEY=... DEPLOYER_PRIVATE_KEY=... ./orchestrator
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/pkg/secrets"
	"github.com/AleutianAI/MetaDAG/services/orchestrator"
)

func main() {
	// Containers scrape stdout as JSON
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "orchestrator",
		JSON:    true,
		Output:  os.Stdout,
	})
	logger.SetDefault()

	os.Exit(run(logger))
}

func run(logger *logging.Logger) int {
	defer logger.Close()

	secrets.Init()
	defer secrets.Purge()

	cfg, err := orchestrator.LoadConfig(os.Getenv("METADAG_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logger = logging.New(logging.Config{
			Level:   level,
			Service: "orchestrator",
			JSON:    true,
			Output:  os.Stdout,
		})
		logger.SetDefault()
		defer logger.Close()
	} else {
		slog.Warn("Ignoring invalid LOG_LEVEL", "value", cfg.LogLevel)
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"model", cfg.Model.Name,
		"network", cfg.Deploy.Network,
		"mongo", cfg.Store.MongoURI != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to create orchestrator", "error", err)
		return 1
	}

	if err := svc.Run(ctx); err != nil {
		slog.Error("Orchestrator error", "error", err)
		return 1
	}
	slog.Info("Orchestrator stopped")
	return 0
}
