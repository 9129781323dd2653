// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the MetaDAG HTTP service.
//
// This package wires every component of the contract pipeline behind one
// Gin router: the model client, the solhint runner, the repair prompter,
// the audit loop, the Hardhat deploy pipeline and the history store, plus
// tracing and Prometheus metrics.
//
// # Usage
//
//	cfg, err := orchestrator.LoadConfig(os.Getenv("METADAG_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = svc.Run(ctx)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/AleutianAI/MetaDAG/services/autofix"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/AleutianAI/MetaDAG/services/generate"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/lint"
	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/handlers"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/middleware"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/routes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

// serviceName identifies this process in traces.
const serviceName = "metadag-orchestrator"

const (
	// startupProbeTimeout bounds the dependency checks run by New.
	startupProbeTimeout = 15 * time.Second

	// verifierDialTimeout bounds each chain RPC call.
	verifierDialTimeout = 10 * time.Second

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// =============================================================================
// Service Interface
// =============================================================================

// Service is the orchestrator HTTP service.
type Service interface {
	// Run serves HTTP until ctx is cancelled or the server fails.
	//
	// # Description
	//
	// Starts the HTTP server on the configured port. When ctx is
	// cancelled, in-flight requests get shutdownTimeout to finish. All
	// resources are released before Run returns.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or stops abnormally.
	//     A shutdown triggered by ctx returns nil.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine

	// Close releases resources without serving. Use when Run is never
	// called.
	Close()
}

// =============================================================================
// Service Implementation
// =============================================================================

// service implements Service.
type service struct {
	config    Config
	router    *gin.Engine
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	llmClient llm.LLMClient
	linter    *lint.Runner
	auditor   *audit.Auditor
	toolchain *deploy.Hardhat
	verifier  *deploy.ChainVerifier
	pipeline  *deploy.Pipeline
	generator *generate.Generator
	store     history.Store

	telemetryShutdown telemetry.Shutdown
}

// New creates a fully wired orchestrator.
//
// # Description
//
// Initializes, in order: Prometheus metrics, OpenTelemetry export, the
// model client, the history store, the contract pipeline, the dependency
// probes and the router. Missing solhint or Hardhat binaries are logged
// but not fatal; the service degrades as documented on /health.
//
// # Inputs
//
//   - ctx: Bounds store connection and startup probes.
//   - cfg: Configuration, normally from LoadConfig.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Invalid configuration, telemetry, model client or store failure.
func New(ctx context.Context, cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &service{config: cfg}
	gin.SetMode(cfg.GinMode)

	s.initMetrics()

	if err := s.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize model client: %w", err)
	}

	if err := s.initStore(ctx); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}

	s.initPipeline(ctx)
	s.probeDependencies(ctx)
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until ctx is done or the server
// fails.
func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator server", "port", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down orchestrator server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases all resources.
func (s *service) Close() {
	s.cleanup()
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTelemetry installs the trace and meter providers. OpenTelemetry
// instruments are bridged into the service registry so they appear on
// /metrics next to the Prometheus-native series.
func (s *service) initTelemetry(ctx context.Context) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		TraceExporter:  s.config.TraceExporter,
		MetricExporter: s.config.MetricExporter,
		OTLPEndpoint:   s.config.OTelEndpoint,
		Registerer:     s.registry,
	})
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

// initMetrics creates a private registry with runtime collectors and the
// orchestrator metrics.
func (s *service) initMetrics() {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewMetrics(s.registry)
}

// initLLMClient builds the OpenAI-compatible model client.
func (s *service) initLLMClient() error {
	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  s.config.Model.APIKey,
		Model:   s.config.Model.Name,
		BaseURL: s.config.Model.BaseURL,
		Timeout: s.config.Model.Timeout,
	})
	if err != nil {
		return err
	}
	s.llmClient = client
	return nil
}

// initStore connects the history backend: MongoDB when a URI is
// configured, SQLite otherwise.
func (s *service) initStore(ctx context.Context) error {
	if s.config.Store.MongoURI != "" {
		store, err := history.NewMongoStore(ctx, s.config.Store.MongoURI, s.config.Store.Database)
		if err != nil {
			return err
		}
		s.store = store
		return nil
	}

	slog.Info("MONGO_URI not configured, using SQLite history store")
	store, err := history.NewSQLStore(s.config.Store.SQLitePath)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// initPipeline builds the lint, repair, audit, generate and deploy
// components.
func (s *service) initPipeline(ctx context.Context) {
	s.linter = lint.NewRunner(
		lint.WithCommand(s.config.Lint.Command),
		lint.WithConfigPath(s.config.Lint.ConfigPath),
		lint.WithTimeout(s.config.Lint.Timeout),
	)

	repairer := autofix.NewRepairer(s.llmClient,
		autofix.WithObserver(func(template string, outcome autofix.Outcome, _ time.Duration) {
			s.metrics.RecordRepair(template, string(outcome))
		}),
	)

	s.auditor = audit.NewAuditor(s.linter, repairer)
	s.generator = generate.NewGenerator(s.llmClient)

	s.toolchain = deploy.NewHardhat(s.config.Deploy.HardhatDir,
		deploy.WithNPX(s.config.Deploy.NPX),
		deploy.WithCompileTimeout(s.config.Deploy.CompileTimeout),
		deploy.WithDeployTimeout(s.config.Deploy.DeployTimeout),
		deploy.WithPrivateKey(s.config.Deploy.PrivateKey),
	)

	opts := []deploy.PipelineOption{
		deploy.WithNetwork(s.config.Deploy.Network),
		deploy.WithExplorerTemplate(s.config.Deploy.ExplorerURLTemplate),
		deploy.WithObserver(func(r *deploy.Result) {
			s.metrics.RecordDeployment(r.Network, r.Success, string(r.ErrorKind))
			s.metrics.ObserveStage(observability.StageDeploy, r.Duration)
		}),
	}
	if s.config.Deploy.RPCURL != "" {
		verifier, err := deploy.DialVerifier(ctx, s.config.Deploy.RPCURL, verifierDialTimeout)
		if err != nil {
			slog.Warn("Chain verifier unavailable, deployments will not be verified",
				"rpc_url", s.config.Deploy.RPCURL, "error", err)
		} else {
			s.verifier = verifier
			opts = append(opts, deploy.WithVerifier(verifier))
		}
	}
	s.pipeline = deploy.NewPipeline(s.toolchain, repairer, opts...)

	if addr, err := deploy.DeployerAddress(s.config.Deploy.PrivateKey); err == nil {
		slog.Info("Deploy pipeline ready",
			"network", s.pipeline.Network(),
			"deployer", addr.Hex(),
			"hardhat_dir", s.toolchain.Dir(),
		)
	}
}

// probeDependencies checks the external tools and store concurrently and
// logs what is missing. Nothing here is fatal.
func (s *service) probeDependencies(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.linter.DetectAvailable(gctx); err != nil {
			slog.Warn("solhint probe failed", "command", s.linter.Command(), "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.toolchain.Available(); err != nil {
			slog.Warn("Hardhat toolchain unavailable, deployments will fail", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.store.Ping(gctx); err != nil {
			slog.Warn("History store ping failed", "error", err)
		}
		return nil
	})
	_ = g.Wait()
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		middleware.RequestID(),
		middleware.RequestLogger(),
	)

	routes.SetupRoutes(s.router, routes.Dependencies{
		Auditor:   s.auditor,
		Linter:    s.linter,
		Generator: s.generator,
		Deployer:  s.pipeline,
		Store:     s.store,
		Metrics:   s.metrics,
		Gatherer:  s.registry,
		Health: handlers.HealthProbes{
			LintAvailable:      s.linter.IsAvailable,
			ToolchainAvailable: func() bool { return s.toolchain.Available() == nil },
			StorePing:          s.store.Ping,
		},
	})
}

// cleanup releases all resources held by the service. Safe to call more
// than once.
func (s *service) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			slog.Warn("History store close error", "error", err)
		}
		s.store = nil
	}
	if s.verifier != nil {
		s.verifier.Close()
		s.verifier = nil
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("Telemetry shutdown error", "error", err)
		}
		s.telemetryShutdown = nil
	}
}
