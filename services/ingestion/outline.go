// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/AleutianAI/AcademicAgent/services/llm"
)

// Section is one heading of an outline. Anchor is a timestamp label for
// video ("[12.5s]") or a page label for pdf ("[Page 3]").
type Section struct {
	Heading   string   `json:"heading"`
	Anchor    string   `json:"anchor"`
	Summary   string   `json:"summary"`
	SubPoints []string `json:"sub_points"`
}

// Outline is the structured summary archived for an ingested asset.
type Outline struct {
	AssetID     string    `json:"asset_id"`
	AssetType   AssetType `json:"asset_type"`
	Title       string    `json:"title"`
	Outline     []Section `json:"outline"`
	GeneratedAt time.Time `json:"generated_at"`
}

const outlineSystemPrompt = `You turn raw lecture material into a structured study outline.
The material is a list of lines, each prefixed with an anchor such as [12.5s] or [Page 3].
Reply with one JSON object: {"title": string, "outline": [{"heading": string, "anchor": string, "summary": string, "sub_points": [string]}]}.
Copy anchors verbatim from the material. Do not invent content.`

// Synthesizer builds outlines with a JSON-mode LLM call.
//
// Context longer than the budget is split with a recursive character
// splitter; each chunk gets its own call and the partial outlines are
// concatenated in order.
type Synthesizer struct {
	client   llm.Client
	splitter textsplitter.TextSplitter
	budget   int
	logger   *slog.Logger
	now      func() time.Time
}

// NewSynthesizer creates a Synthesizer. budget is the maximum characters of
// raw context per call; overlap is shared between adjacent chunks.
func NewSynthesizer(client llm.Client, budget, overlap int, logger *slog.Logger) *Synthesizer {
	if budget <= 0 {
		budget = 24000
	}
	if overlap < 0 || overlap >= budget {
		overlap = budget / 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client: client,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(budget),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
		),
		budget: budget,
		logger: logger,
		now:    time.Now,
	}
}

// Synthesize produces the outline for one task.
func (s *Synthesizer) Synthesize(ctx context.Context, task AssetTask) (*Outline, error) {
	chunks := []string{task.RawContext}
	if len(task.RawContext) > s.budget {
		split, err := s.splitter.SplitText(task.RawContext)
		if err != nil {
			return nil, fmt.Errorf("split context: %w", err)
		}
		chunks = split
	}

	out := &Outline{AssetID: task.AssetID, AssetType: task.AssetType}
	for i, chunk := range chunks {
		var part struct {
			Title   string    `json:"title"`
			Outline []Section `json:"outline"`
		}
		user := fmt.Sprintf("Asset: %s (%s), part %d of %d.\n\n%s",
			task.AssetID, task.AssetType, i+1, len(chunks), chunk)
		if err := llm.ChatJSON(ctx, s.client,
			[]llm.Message{llm.System(outlineSystemPrompt), llm.User(user)},
			llm.Options{}, &part); err != nil {
			return nil, fmt.Errorf("outline %s part %d: %w", task.AssetID, i+1, err)
		}
		if out.Title == "" {
			out.Title = strings.TrimSpace(part.Title)
		}
		out.Outline = append(out.Outline, part.Outline...)
	}
	if out.Title == "" {
		out.Title = task.AssetID
	}
	out.GeneratedAt = s.now().UTC()

	s.logger.Debug("outline synthesized",
		slog.String("asset_id", task.AssetID),
		slog.Int("chunks", len(chunks)),
		slog.Int("sections", len(out.Outline)))
	return out, nil
}

// Archive writes the outline atomically: temp file in the same directory,
// fsync, rename.
func Archive(path string, o *Outline) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outline: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create outline dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".outline-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp outline: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp outline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp outline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp outline: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename outline: %w", err)
	}
	return nil
}
