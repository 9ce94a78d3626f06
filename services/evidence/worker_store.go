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
	"context"
	"sort"

	"github.com/AleutianAI/AcademicAgent/services/dispatch"
)

// Searcher is the vector-search worker. *dispatch.Workers implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, assetID string) (dispatch.Result, error)
}

// WorkerStore answers queries through the vector-search worker.
//
// The worker already re-ranks, so WorkerStore only restores the order and
// applies the cap.
type WorkerStore struct {
	searcher Searcher
	topK     int
}

// NewWorkerStore creates a WorkerStore. defaultTopK applies when a Query
// leaves TopK at zero.
func NewWorkerStore(searcher Searcher, defaultTopK int) *WorkerStore {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &WorkerStore{searcher: searcher, topK: defaultTopK}
}

// Search implements Store.
func (s *WorkerStore) Search(ctx context.Context, q Query) ([]Evidence, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = s.topK
	}

	res, err := s.searcher.Search(ctx, q.Text, topK, q.AssetID)
	if err != nil {
		return nil, searchErr("dispatch: %v", err)
	}
	if err := res.Err(); err != nil {
		return nil, searchErr("%v", err)
	}

	var hits []Evidence
	if err := res.Decode(&hits); err != nil {
		return nil, searchErr("%v", err)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
