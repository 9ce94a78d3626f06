// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence retrieves ranked evidence chunks for a question.
//
// # Description
//
// Evidence is a chunk of indexed content (a transcript window, a pdf text
// block) with its provenance. A Store answers a Query with at most TopK
// chunks sorted by score, highest first. Two stores exist: WorkerStore,
// which dispatches the vector-search worker, and WeaviateStore, which
// queries a Weaviate class directly.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrSearch wraps every failure of the underlying search backend.
var ErrSearch = errors.New("evidence search failed")

// Modality is the medium an evidence chunk came from.
type Modality string

const (
	ModalityVideo Modality = "video"
	ModalityPDF   Modality = "pdf"
)

// TypeTranscript is the content type of transcript windows.
const TypeTranscript = "transcript_context"

// Re-ranking boosts.
const (
	KeywordBoost    = 0.15
	TranscriptBoost = 0.05
)

// Metadata locates an evidence chunk inside its asset.
type Metadata struct {
	AssetID  string   `json:"asset_id"`
	Modality Modality `json:"modality"`
	Type     string   `json:"type,omitempty"`

	// Timestamp is seconds into the video. Video only.
	Timestamp *float64 `json:"timestamp,omitempty"`

	// PageLabel is the zero-based page index. PDF only.
	PageLabel *int `json:"page_label,omitempty"`

	// BBox is [x0, y0, x1, y1] on the page when known.
	BBox []float64 `json:"bbox,omitempty"`
}

// UnmarshalJSON accepts page_label as a float. The search worker stores
// page indexes in the same float column as video seconds, so it emits 3.0
// rather than 3.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	aux := struct {
		*plain
		PageLabel *float64 `json:"page_label,omitempty"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.PageLabel = nil
	if aux.PageLabel != nil {
		page := int(math.Round(*aux.PageLabel))
		m.PageLabel = &page
	}
	return nil
}

// Evidence is one retrieved chunk.
type Evidence struct {
	Score    float64  `json:"score"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Query is a retrieval request.
type Query struct {
	Text string

	// TopK caps the result count. Zero means the store's default.
	TopK int

	// AssetID restricts results to one asset. Empty searches everything.
	AssetID string
}

// Store retrieves evidence.
type Store interface {
	Search(ctx context.Context, q Query) ([]Evidence, error)
}

// Rerank applies the academic boosts, sorts by score and truncates.
//
// # Description
//
// A chunk whose content contains the query text (case-insensitive) gains
// KeywordBoost. Video transcript chunks gain TranscriptBoost, so textual
// questions prefer citable transcript windows over frame captions. Scores
// are rounded to four decimals. The sort is stable so equal scores keep
// backend order.
//
// # Inputs
//
//   - query: The user's query text.
//   - hits: Raw backend hits. Modified in place.
//   - topK: Result cap. Zero or negative keeps everything.
//
// # Outputs
//
//   - []Evidence: At most topK hits, highest score first.
func Rerank(query string, hits []Evidence, topK int) []Evidence {
	q := strings.ToLower(strings.TrimSpace(query))
	for i := range hits {
		h := &hits[i]
		if q != "" && strings.Contains(strings.ToLower(h.Content), q) {
			h.Score += KeywordBoost
		}
		if h.Metadata.Modality == ModalityVideo && h.Metadata.Type == TypeTranscript {
			h.Score += TranscriptBoost
		}
		h.Score = math.Round(h.Score*1e4) / 1e4
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func searchErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSearch, fmt.Sprintf(format, args...))
}
