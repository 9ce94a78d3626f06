// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
)

// Open builds the Store selected by cfg.Backend. searcher is only used by
// the worker backend.
func Open(cfg config.EvidenceConfig, searcher Searcher, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "worker":
		if searcher == nil {
			return nil, fmt.Errorf("worker evidence backend needs a searcher")
		}
		return NewWorkerStore(searcher, cfg.TopK), nil
	case "weaviate":
		return NewWeaviateStore(WeaviateConfig{
			URL:    cfg.Weaviate.URL,
			Class:  cfg.Weaviate.Class,
			APIKey: cfg.Weaviate.APIKey,
			TopK:   cfg.TopK,
			Logger: logger,
		})
	default:
		return nil, fmt.Errorf("unknown evidence backend %q", cfg.Backend)
	}
}
