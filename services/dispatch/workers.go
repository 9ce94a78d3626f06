// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
)

// Workers is the typed catalogue of known workers. Each method builds the
// parameter object the worker's wrapper script expects.
//
// Methods that take an asset id switch the worker to batch mode when the id
// is empty: the worker then processes every pending raw asset.
type Workers struct {
	inv   Invoker
	specs config.WorkersConfig
}

// NewWorkers binds the catalogue to an Invoker.
func NewWorkers(inv Invoker, specs config.WorkersConfig) *Workers {
	return &Workers{inv: inv, specs: specs}
}

func (w *Workers) call(ctx context.Context, spec config.WorkerSpec, params map[string]any) (Result, error) {
	return w.inv.Invoke(ctx, Invocation{WorkerKey: spec.Env, Script: spec.Script, Params: params})
}

// idParam maps "" to JSON null, which the wrappers read as "all assets".
func idParam(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// ParseDocument runs the document parser for one pdf, or all when pdfID is "".
func (w *Workers) ParseDocument(ctx context.Context, pdfID string) (Result, error) {
	return w.call(ctx, w.specs.Parser, map[string]any{"pdf_id": idParam(pdfID)})
}

// SliceVideo transcodes a video and extracts keyframes named by timestamp.
func (w *Workers) SliceVideo(ctx context.Context, videoPath string) (Result, error) {
	return w.call(ctx, w.specs.Slicer, map[string]any{"video_path": idParam(videoPath)})
}

// Transcribe produces transcript segments for one audio track.
func (w *Workers) Transcribe(ctx context.Context, audioID string) (Result, error) {
	return w.call(ctx, w.specs.Transcriber, map[string]any{"audio_id": idParam(audioID)})
}

// Index vectorizes prepared artifacts. target is "pdf", "video" or "all".
func (w *Workers) Index(ctx context.Context, target, assetID string, forceReset bool) (Result, error) {
	return w.call(ctx, w.specs.Indexer, map[string]any{
		"target":      target,
		"asset_id":    idParam(assetID),
		"force_reset": forceReset,
	})
}

// Search queries the vector index. An empty assetID searches everything.
func (w *Workers) Search(ctx context.Context, query string, topK int, assetID string) (Result, error) {
	filters := map[string]any{}
	if assetID != "" {
		filters["asset_id"] = assetID
	}
	return w.call(ctx, w.specs.Search, map[string]any{
		"query":    query,
		"top_k":    topK,
		"asset_id": idParam(assetID),
		"filters":  filters,
	})
}

// Inspect asks the vision model about one image.
func (w *Workers) Inspect(ctx context.Context, imagePath, prompt string) (string, error) {
	res, err := w.call(ctx, w.specs.Vision, map[string]any{"image": imagePath, "prompt": prompt})
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	var body struct {
		Response string `json:"response"`
	}
	if err := res.Decode(&body); err != nil {
		return "", fmt.Errorf("%w: vision: %v", ErrWorkerFailure, err)
	}
	return body.Response, nil
}

// Evaluate runs an expression in the symbolic sandbox and returns its
// result rendered as text.
func (w *Workers) Evaluate(ctx context.Context, expression, mode, symbol string) (string, error) {
	params := map[string]any{"expression": expression, "mode": mode}
	if symbol != "" {
		params["symbol"] = symbol
	}
	res, err := w.call(ctx, w.specs.Sandbox, params)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	var body struct {
		Result any `json:"result"`
	}
	if err := res.Decode(&body); err != nil {
		return "", fmt.Errorf("%w: sandbox: %v", ErrWorkerFailure, err)
	}
	return fmt.Sprint(body.Result), nil
}
