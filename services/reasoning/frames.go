// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FrameLocator resolves keyframe images extracted by the video slicer.
//
// Frames live at <storage root>/processed/video/<asset>/frames/time_<ts>.jpg
// with ts formatted to two decimals.
type FrameLocator struct {
	videoRoot string
}

// NewFrameLocator locates frames under storageRoot.
func NewFrameLocator(storageRoot string) *FrameLocator {
	return &FrameLocator{videoRoot: filepath.Join(storageRoot, "processed", "video")}
}

// FrameName is the file name of the frame at ts seconds.
func FrameName(ts float64) string {
	return fmt.Sprintf("time_%.2f.jpg", ts)
}

// Resolve returns the frame for assetID at ts, falling back to the frame
// nearest in time. ErrFrameNotFound when the asset has no frames.
func (f *FrameLocator) Resolve(assetID string, ts float64) (string, error) {
	if assetID == "" || strings.ContainsAny(assetID, `/\`) || assetID == ".." {
		return "", fmt.Errorf("%w: invalid asset %q", ErrFrameNotFound, assetID)
	}
	dir := filepath.Join(f.videoRoot, assetID, "frames")
	exact := filepath.Join(dir, FrameName(ts))
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s at %.2fs", ErrFrameNotFound, assetID, ts)
	}
	best, bestDist := "", math.Inf(1)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "time_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(name, "time_"), ".jpg"), 64)
		if err != nil {
			continue
		}
		if d := math.Abs(v - ts); d < bestDist {
			best, bestDist = name, d
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: %s at %.2fs", ErrFrameNotFound, assetID, ts)
	}
	return filepath.Join(dir, best), nil
}
