// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the academic agent and serves its HTTP API.
//
// Build wires every component from a loaded configuration: the resource
// gate, the worker dispatcher, the LLM client, the evidence store, the
// checkpoint store, the ingestion pipeline and the reasoning workflow.
// Service puts a gin router in front of them and runs the server next to
// the gate supervisor and the optional raw-asset watcher.
//
// # Usage
//
//	comps, err := orchestrator.Build(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer comps.Close()
//	svc := orchestrator.New(cfg, comps, providers.Metrics, logger)
//	return svc.Run(ctx)
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
	"github.com/AleutianAI/AcademicAgent/services/checkpoint"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/evidence"
	"github.com/AleutianAI/AcademicAgent/services/gate"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/llm"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/observability"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/routes"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// =============================================================================
// Components
// =============================================================================

// Components are the wired domain services.
type Components struct {
	Gate        *gate.Gate
	Workers     *dispatch.Workers
	Pipeline    *ingestion.Pipeline
	Workflow    *reasoning.Workflow
	Checkpoints checkpoint.Store
	Hub         *handlers.Hub
}

// Close releases the checkpoint backend.
func (c *Components) Close() error {
	if c.Checkpoints == nil {
		return nil
	}
	return c.Checkpoints.Close()
}

// Build wires every component from cfg.
//
// # Description
//
// One gate is created and injected into both the ingestion pipeline and the
// reasoning workflow. The typed worker catalogue serves as ingestion steps,
// as the worker evidence backend, and as the vision and sandbox tools.
//
// # Inputs
//
//   - ctx: Bounds backend connections made during construction.
//   - cfg: Loaded and validated configuration.
//   - logger: Base logger. May be nil.
//
// # Outputs
//
//   - *Components: Caller must Close.
//   - error: Missing LLM key, unreachable checkpoint backend, bad evidence
//     configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := gate.New(gate.WithMaxHold(cfg.Gate.MaxHold), gate.WithLogger(logger))

	disp := dispatch.New(dispatch.Config{
		ProjectRoot:  cfg.Workers.ProjectRoot,
		Environments: cfg.Workers.Environments,
		Timeout:      cfg.Workers.Timeout,
	}, dispatch.WithLogger(logger))
	workers := dispatch.NewWorkers(disp, cfg.Workers)

	client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Timeout:           cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	store, err := evidence.Open(cfg.Evidence, workers, logger)
	if err != nil {
		return nil, fmt.Errorf("evidence store: %w", err)
	}

	ckpt, err := checkpoint.Open(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}

	scanner := ingestion.NewScanner(cfg.Storage.Root)
	synth := ingestion.NewSynthesizer(client, cfg.Ingestion.ContextBudget, cfg.Ingestion.ChunkOverlap, logger)
	pipeline := ingestion.NewPipeline(g, workers, scanner, synth, logger)

	hub := handlers.NewHub(logger)
	wf, err := reasoning.NewWorkflow(g, ckpt, reasoning.Deps{
		LLM:      client,
		Evidence: store,
		Vision:   workers,
		Sandbox:  workers,
		Frames:   reasoning.NewFrameLocator(cfg.Storage.Root),
		TopK:     cfg.Evidence.TopK,
		Logger:   logger,
	}, reasoning.WithMaxSteps(cfg.Reasoning.MaxSteps), reasoning.WithObserver(hub.Publish))
	if err != nil {
		_ = ckpt.Close()
		return nil, err
	}

	return &Components{
		Gate:        g,
		Workers:     workers,
		Pipeline:    pipeline,
		Workflow:    wf,
		Checkpoints: ckpt,
		Hub:         hub,
	}, nil
}

// =============================================================================
// Service
// =============================================================================

// Service is the HTTP front end plus its background supervisors.
//
// # Thread Safety
//
// Thread-safe after construction. Run blocks and is called once.
type Service struct {
	cfg    *config.Config
	comps  *Components
	router *gin.Engine
	logger *slog.Logger
}

// New builds the router over comps. metrics serves /metrics and may be nil.
func New(cfg *config.Config, comps *Components, metrics http.Handler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(observability.Middleware())

	h := &handlers.Handlers{
		Gate:     comps.Gate,
		Pipeline: comps.Pipeline,
		Workflow: comps.Workflow,
		Hub:      comps.Hub,
		Logger:   logger,
	}
	routes.SetupRoutes(router, h, metrics, cfg.Server.APIToken)

	return &Service{cfg: cfg, comps: comps, router: router, logger: logger}
}

// Router returns the configured engine for tests.
func (s *Service) Router() *gin.Engine { return s.router }

// Run serves HTTP until ctx is done.
//
// # Description
//
// Runs three goroutines under one errgroup: the HTTP server, the gate
// supervisor that reclaims stale leases, and (when ingestion.watch is set)
// the raw-asset watcher that triggers sweeps. Cancelling ctx shuts the
// server down gracefully within server.shutdown_timeout.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	s.comps.Pipeline.SetLifetime(ctx)

	g.Go(func() error {
		s.logger.Info("orchestrator listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("orchestrator shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return s.comps.Gate.Supervise(ctx, s.cfg.Gate.SuperviseInterval)
	})

	if s.cfg.Ingestion.Watch {
		w, err := ingestion.NewWatcher(
			filepath.Join(s.cfg.Storage.Root, "raw"),
			s.cfg.Ingestion.Debounce,
			s.triggerSweep,
			s.logger,
		)
		if err != nil {
			return fmt.Errorf("raw watcher: %w", err)
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	return g.Wait()
}

// triggerSweep runs one sweep for the watcher. A busy gate is normal here:
// the next quiet period triggers again.
func (s *Service) triggerSweep(ctx context.Context) {
	report, err := s.comps.Pipeline.Sweep(ctx, ingestion.SweepOptions{})
	if errors.Is(err, gate.ErrAdmissionDenied) {
		s.logger.Info("watcher sweep skipped, gate busy")
		return
	}
	if err != nil {
		s.logger.Warn("watcher sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("watcher sweep finished",
		slog.Int("pending", report.Pending),
		slog.Int("archived", len(report.Archived)),
		slog.Int("failed", len(report.Failed)))
}
