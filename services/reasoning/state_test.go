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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/services/evidence"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestNext(t *testing.T) {
	refetch := &EvalReport{Action: ActionRefetch}
	proceed := &EvalReport{Action: ActionProceed}

	tests := []struct {
		name    string
		current NodeID
		state   State
		want    NodeID
	}{
		{"research goes to evaluate", NodeResearch, State{}, NodeEvaluate},
		{"error ends from research", NodeResearch, State{Status: StatusError}, NodeEnd},
		{"refetch loops to research", NodeEvaluate, State{EvalReport: refetch}, NodeResearch},
		{"vision when video and needed", NodeEvaluate,
			State{EvalReport: proceed, HasVideo: true, Manifest: Manifest{NeedVision: true}}, NodeVision},
		{"no video skips vision", NodeEvaluate,
			State{EvalReport: proceed, Manifest: Manifest{NeedVision: true}}, NodeSynthesize},
		{"sandbox after evaluate", NodeEvaluate,
			State{EvalReport: proceed, Manifest: Manifest{NeedSandbox: true}}, NodeLogic},
		{"proceed to synthesize", NodeEvaluate, State{EvalReport: proceed}, NodeSynthesize},
		{"vision then logic", NodeVision, State{Manifest: Manifest{NeedSandbox: true}}, NodeLogic},
		{"vision then synthesize", NodeVision, State{}, NodeSynthesize},
		{"logic then synthesize", NodeLogic, State{}, NodeSynthesize},
		{"synthesize ends", NodeSynthesize, State{Status: StatusCompleted}, NodeEnd},
		{"error beats refetch", NodeEvaluate, State{Status: StatusError, EvalReport: refetch}, NodeEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.current, tt.state))
		})
	}
}

func TestParseNodeID(t *testing.T) {
	id, err := ParseNodeID("vision")
	require.NoError(t, err)
	assert.Equal(t, NodeVision, id)

	_, err = ParseNodeID("retrieve")
	assert.Error(t, err)
}

func TestMerge_RetryCountNeverDecreases(t *testing.T) {
	s := State{RetryCount: 2}
	var d Diff
	d.SetRetryCount(1)
	assert.Equal(t, 2, Merge(s, d).RetryCount)

	d = Diff{}
	d.SetRetryCount(2)
	assert.Equal(t, 2, Merge(State{RetryCount: 1}, d).RetryCount)
}

func TestMerge_AppliesOnlySetFieldsAndAppendsChain(t *testing.T) {
	s := State{Query: "q", Answer: "keep", ReasoningChain: []string{"first"}}
	var d Diff
	d.SetRefinedQuery("refined")
	d.Log("second %d", 2)

	got := Merge(s, d)
	assert.Equal(t, "refined", got.RefinedQuery)
	assert.Equal(t, "keep", got.Answer)
	assert.Equal(t, []string{"first", "second 2"}, got.ReasoningChain)
	assert.Equal(t, FieldRefinedQuery|FieldChain, d.Touched())
}

func TestDiff_FailSetsStatusAndError(t *testing.T) {
	var d Diff
	d.Fail("boom")
	got := Merge(State{Status: StatusRunning}, d)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.True(t, d.Touched().Has(FieldStatus|FieldError))
}

func TestProject_HidesUnreadFields(t *testing.T) {
	s := State{
		Query:          "q",
		Answer:         "secret",
		RetrievedDocs:  []evidence.Evidence{{Content: "a"}},
		ReasoningChain: []string{"x"},
	}
	v := Project(s, FieldQuery|FieldRetrievedDocs)
	assert.Equal(t, "q", v.Query)
	assert.Empty(t, v.Answer)
	assert.Nil(t, v.ReasoningChain)

	v.RetrievedDocs[0].Content = "mutated"
	assert.Equal(t, "a", s.RetrievedDocs[0].Content)
}

func TestField_String(t *testing.T) {
	assert.Equal(t, "query|answer", (FieldQuery | FieldAnswer).String())
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "03:05", FormatTimestamp(185))
	assert.Equal(t, "00:00", FormatTimestamp(0))
	assert.Equal(t, "09:59", FormatTimestamp(599.9))
	assert.Equal(t, "62:05", FormatTimestamp(3725))
	assert.Equal(t, "00:00", FormatTimestamp(-3))
}

func TestBuildCitations_DedupAndOrder(t *testing.T) {
	docs := []evidence.Evidence{
		{Metadata: evidence.Metadata{AssetID: "lec1", Modality: evidence.ModalityVideo, Timestamp: fptr(600)}},
		{Metadata: evidence.Metadata{AssetID: "lec1", Modality: evidence.ModalityVideo, Timestamp: fptr(599)}},
		{Metadata: evidence.Metadata{AssetID: "lec1", Modality: evidence.ModalityVideo, Timestamp: fptr(600)}},
		{Metadata: evidence.Metadata{AssetID: "book", Modality: evidence.ModalityPDF, PageLabel: iptr(10)}},
		{Metadata: evidence.Metadata{AssetID: "book", Modality: evidence.ModalityPDF, PageLabel: iptr(2)}},
		{Metadata: evidence.Metadata{AssetID: "book", Modality: evidence.ModalityPDF}},
		{Metadata: evidence.Metadata{AssetID: "lec1", Modality: evidence.ModalityVideo}},
	}

	got := BuildCitations(docs)
	require.Len(t, got, 4)
	labels := make([]string, len(got))
	for i, c := range got {
		labels[i] = c.String()
	}
	assert.Equal(t, []string{"book p.2", "book p.10", "lec1@09:59", "lec1@10:00"}, labels)
}

func TestNormalizeCitations_BBoxDistinguishes(t *testing.T) {
	in := []Citation{
		{Modality: evidence.ModalityPDF, AssetID: "b", PageNumber: iptr(1), BBox: []float64{0, 0, 1, 1}},
		{Modality: evidence.ModalityPDF, AssetID: "b", PageNumber: iptr(1), BBox: []float64{0, 0, 1, 1}},
		{Modality: evidence.ModalityPDF, AssetID: "b", PageNumber: iptr(1), BBox: []float64{2, 2, 3, 3}},
	}
	assert.Len(t, NormalizeCitations(in), 2)
}

func writeFrame(t *testing.T, root, asset string, ts float64) string {
	t.Helper()
	dir := filepath.Join(root, "processed", "video", asset, "frames")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, FrameName(ts))
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o644))
	return path
}

func TestFrameLocator_ExactThenNearest(t *testing.T) {
	root := t.TempDir()
	exact := writeFrame(t, root, "lec1", 185)
	near := writeFrame(t, root, "lec1", 240)
	loc := NewFrameLocator(root)

	got, err := loc.Resolve("lec1", 185)
	require.NoError(t, err)
	assert.Equal(t, exact, got)

	got, err = loc.Resolve("lec1", 230)
	require.NoError(t, err)
	assert.Equal(t, near, got)
}

func TestFrameLocator_NotFound(t *testing.T) {
	loc := NewFrameLocator(t.TempDir())

	_, err := loc.Resolve("missing", 10)
	assert.True(t, errors.Is(err, ErrFrameNotFound))

	_, err = loc.Resolve("../etc", 10)
	assert.True(t, errors.Is(err, ErrFrameNotFound))
}

func TestVisionInstruction_DefaultsToScene(t *testing.T) {
	assert.Equal(t, visionInstructions["ocr"], VisionInstruction(" OCR "))
	assert.Equal(t, visionInstructions["scene"], VisionInstruction("panorama"))
}

func TestRender_RefineIncludesCritique(t *testing.T) {
	out, err := render("refine", promptData{Query: "what is entropy?", Critique: "too generic"})
	require.NoError(t, err)
	assert.Contains(t, out, "what is entropy?")
	assert.Contains(t, out, "too generic")

	out, err = render("synthesize", promptData{
		Query: "q",
		Docs: []evidence.Evidence{{Content: "body", Metadata: evidence.Metadata{
			AssetID: "lec1", Modality: evidence.ModalityVideo, Timestamp: fptr(185)}}},
		Citations: BuildCitations([]evidence.Evidence{{Metadata: evidence.Metadata{
			AssetID: "lec1", Modality: evidence.ModalityVideo, Timestamp: fptr(185)}}}),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "[1] (video lec1 03:05) body")
	assert.Contains(t, out, "lec1@03:05")
}
