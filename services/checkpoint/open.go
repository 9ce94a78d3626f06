// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
	store "github.com/AleutianAI/AcademicAgent/pkg/storage/badger"
)

// Open builds the Store selected by cfg.Backend.
//
// # Inputs
//
//   - ctx: Bounds the initial connection for networked backends.
//   - cfg: Checkpoint section of the loaded configuration.
//   - logger: Receives backend logs. May be nil.
//
// # Outputs
//
//   - Store: Ready to use. Caller must Close.
//   - error: Unknown backend or connection failure.
func Open(ctx context.Context, cfg config.CheckpointConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "badger":
		bc := store.DefaultConfig(cfg.Badger.Path)
		bc.InMemory = cfg.Badger.InMemory
		bc.GCInterval = cfg.Badger.GCInterval
		bc.Logger = logger
		return OpenBadgerStore(bc)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
