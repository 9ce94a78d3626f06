// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
	"github.com/AleutianAI/AcademicAgent/pkg/logging"
	"github.com/AleutianAI/AcademicAgent/pkg/telemetry"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator"
)

// runServe loads the configuration, wires every component and serves until
// SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	exporter, err := logExporter(context.Background(), cfg.Logging.Export)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:    level,
		LogDir:   cfg.Logging.Dir,
		Service:  cfg.Telemetry.ServiceName,
		Format:   logging.Format(cfg.Logging.Format),
		Exporter: exporter,
	})
	defer logger.Close()
	log := logger.Slog()
	slog.SetDefault(log)

	if level != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	comps, err := orchestrator.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	log.Info("academic agent starting",
		slog.String("version", version),
		slog.String("storage_root", cfg.Storage.Root),
		slog.String("evidence_backend", cfg.Evidence.Backend),
		slog.String("checkpoint_backend", cfg.Checkpoint.Backend))

	return orchestrator.New(cfg, comps, providers.Metrics, log).Run(ctx)
}

// logExporter connects the Redis stream exporter when one is configured.
// It returns a nil exporter otherwise.
func logExporter(ctx context.Context, cfg config.LogExportConfig) (logging.LogExporter, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect log redis %s: %w", cfg.Redis.Addr, err)
	}
	return logging.NewRedisStreamExporter(rdb, cfg.Redis.Prefix+cfg.Stream, cfg.MaxLen), nil
}
