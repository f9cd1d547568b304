// PulseGraph - transaction fraud network analytics
package main

import (
	"context"
	"os"

	"github.com/yjing-lab/pulsegraph/internal/config"
	"github.com/yjing-lab/pulsegraph/internal/logging"
	"github.com/yjing-lab/pulsegraph/internal/server"
	"github.com/yjing-lab/pulsegraph/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "development").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info("starting pulsegraph",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"risk_threshold", cfg.RiskThreshold,
		"amount_percentile", cfg.AmountPercentile,
	)

	ctx := context.Background()

	// Distributed tracing (no-op without an OTLP endpoint)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
