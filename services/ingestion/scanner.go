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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// AssetType selects the preparation steps of an ingestion run.
type AssetType string

const (
	AssetVideo AssetType = "video"
	AssetPDF   AssetType = "pdf"

	// AssetAll runs the pdf steps then the video steps, then indexes both.
	AssetAll AssetType = "all"
)

// OutlineFile marks an asset folder as fully ingested.
const OutlineFile = "summary_outline.json"

// AssetTask is one asset whose raw artifacts exist but whose outline does
// not (or any asset, when forced).
type AssetTask struct {
	AssetID    string
	AssetType  AssetType
	RawContext string

	// Dir is the asset folder the outline is archived into.
	Dir string
}

// OutlinePath is where the task's outline is archived.
func (t AssetTask) OutlinePath() string {
	return filepath.Join(t.Dir, OutlineFile)
}

// Scanner finds pending assets under <storage root>/processed.
//
// Layout:
//
//	processed/video/<id>/transcript.json
//	processed/magic-pdf/<id>/ocr/<id>_content_list.json
//	<asset folder>/summary_outline.json
type Scanner struct {
	processed string
}

// NewScanner scans storageRoot/processed.
func NewScanner(storageRoot string) *Scanner {
	return &Scanner{processed: filepath.Join(storageRoot, "processed")}
}

func (s *Scanner) videoRoot() string { return filepath.Join(s.processed, "video") }
func (s *Scanner) pdfRoot() string   { return filepath.Join(s.processed, "magic-pdf") }

type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type contentItem struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	PageIdx int    `json:"page_idx"`
}

// Pending lists assets that need an outline, videos first, each group
// sorted by id. Assets whose raw artifact yields no text are skipped.
//
// An asset whose raw artifact cannot be read or decoded is reported in the
// returned failures and the scan moves on. The error is reserved for the
// asset roots themselves being unreadable.
func (s *Scanner) Pending(force bool) ([]AssetTask, []ItemFailure, error) {
	var (
		tasks    []AssetTask
		failures []ItemFailure
	)
	groups := []struct {
		root    string
		typ     AssetType
		raw     func(dir, id string) string
		context func(path string) (string, error)
	}{
		{s.videoRoot(), AssetVideo, func(dir, _ string) string { return filepath.Join(dir, "transcript.json") }, videoContext},
		{s.pdfRoot(), AssetPDF, func(dir, id string) string { return filepath.Join(dir, "ocr", id+"_content_list.json") }, pdfContext},
	}
	for _, g := range groups {
		ids, err := subdirs(g.root)
		if err != nil {
			return nil, nil, err
		}
		for _, id := range ids {
			dir := filepath.Join(g.root, id)
			raw := g.raw(dir, id)
			if !exists(raw) || (!force && exists(filepath.Join(dir, OutlineFile))) {
				continue
			}
			text, err := g.context(raw)
			if err != nil {
				failures = append(failures, ItemFailure{
					AssetID:   id,
					AssetType: g.typ,
					Error:     fmt.Sprintf("read %s: %v", filepath.Base(raw), err),
				})
				continue
			}
			if text == "" {
				continue
			}
			tasks = append(tasks, AssetTask{AssetID: id, AssetType: g.typ, RawContext: text, Dir: dir})
		}
	}
	return tasks, failures, nil
}

// OutlineRef names an archived outline.
type OutlineRef struct {
	AssetID   string    `json:"asset_id"`
	AssetType AssetType `json:"asset_type"`
	Path      string    `json:"path"`
}

// Outlines lists every archived outline.
func (s *Scanner) Outlines() ([]OutlineRef, error) {
	var refs []OutlineRef
	for _, group := range []struct {
		root string
		typ  AssetType
	}{{s.videoRoot(), AssetVideo}, {s.pdfRoot(), AssetPDF}} {
		ids, err := subdirs(group.root)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			p := filepath.Join(group.root, id, OutlineFile)
			if exists(p) {
				refs = append(refs, OutlineRef{AssetID: id, AssetType: group.typ, Path: p})
			}
		}
	}
	return refs, nil
}

// ErrOutlineNotFound means the asset has no archived outline.
var ErrOutlineNotFound = errors.New("outline not found")

// LoadOutline reads the archived outline of assetID.
func (s *Scanner) LoadOutline(assetID string) (*Outline, error) {
	if assetID == "" || strings.ContainsAny(assetID, `/\`) || assetID == ".." {
		return nil, fmt.Errorf("%w: %q", ErrOutlineNotFound, assetID)
	}
	for _, root := range []string{s.videoRoot(), s.pdfRoot()} {
		data, err := os.ReadFile(filepath.Join(root, assetID, OutlineFile))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var o Outline
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("decode outline %s: %w", assetID, err)
		}
		return &o, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOutlineNotFound, assetID)
}

func videoContext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	segs, err := decodeTranscript(data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%ss]: %s\n", strconv.FormatFloat(seg.Start, 'f', -1, 64), text)
	}
	return strings.TrimSpace(b.String()), nil
}

// decodeTranscript reads the transcriber's {"segments": [...]} document.
// A bare segment list is accepted as well.
func decodeTranscript(data []byte) ([]transcriptSegment, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var segs []transcriptSegment
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return nil, err
		}
		return segs, nil
	}
	var doc struct {
		Segments []transcriptSegment `json:"segments"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Segments, nil
}

func pdfContext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var items []contentItem
	if err := json.Unmarshal(data, &items); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if it.Type != "text" || text == "" {
			continue
		}
		fmt.Fprintf(&b, "[Page %d]: %s\n", it.PageIdx, text)
	}
	return strings.TrimSpace(b.String()), nil
}

// subdirs returns the sorted child directory names of root. A missing root
// has no children.
func subdirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
