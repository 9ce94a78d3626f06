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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/services/llm"
)

func TestScanner_PendingBuildsContext(t *testing.T) {
	root := t.TempDir()
	seedStorage(t, root)

	tasks, failures, err := NewScanner(root).Pending(false)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, tasks, 2)

	assert.Equal(t, AssetVideo, tasks[0].AssetType)
	assert.Equal(t, "[0s]: welcome\n[185s]: entropy is defined here", tasks[0].RawContext)

	assert.Equal(t, AssetPDF, tasks[1].AssetType)
	assert.Equal(t, "[Page 0]: Introduction\n[Page 3]: Main theorem", tasks[1].RawContext)
	assert.Equal(t, filepath.Join(root, "processed", "magic-pdf", "paper", OutlineFile), tasks[1].OutlinePath())
}

func TestScanner_SkipsArchivedUnlessForced(t *testing.T) {
	root := t.TempDir()
	seedStorage(t, root)
	s := NewScanner(root)
	require.NoError(t, Archive(filepath.Join(root, "processed", "video", "lec01", OutlineFile), &Outline{AssetID: "lec01"}))

	tasks, _, err := s.Pending(false)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "paper", tasks[0].AssetID)

	tasks, _, err = s.Pending(true)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	refs, err := s.Outlines()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "lec01", refs[0].AssetID)
}

func TestScanner_EmptyStorage(t *testing.T) {
	tasks, failures, err := NewScanner(t.TempDir()).Pending(false)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Empty(t, failures)
}

func TestScanner_AcceptsBareSegmentList(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "processed", "video", "old", "transcript.json"), []map[string]any{
		{"start": 2.5, "end": 4.0, "text": "legacy layout"},
	})

	tasks, failures, err := NewScanner(root).Pending(false)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, tasks, 1)
	assert.Equal(t, "[2.5s]: legacy layout", tasks[0].RawContext)
}

func TestScanner_ReportsUnreadableAssetsAndContinues(t *testing.T) {
	root := t.TempDir()
	seedStorage(t, root)
	broken := filepath.Join(root, "processed", "video", "broken", "transcript.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(broken), 0o755))
	require.NoError(t, os.WriteFile(broken, []byte(`{not json`), 0o644))
	badList := filepath.Join(root, "processed", "magic-pdf", "scan", "ocr", "scan_content_list.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(badList), 0o755))
	require.NoError(t, os.WriteFile(badList, []byte(`{"pages": 3}`), 0o644))

	tasks, failures, err := NewScanner(root).Pending(false)
	require.NoError(t, err)

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.AssetID)
	}
	assert.Equal(t, []string{"lec01", "paper"}, ids)

	require.Len(t, failures, 2)
	assert.Equal(t, "broken", failures[0].AssetID)
	assert.Equal(t, AssetVideo, failures[0].AssetType)
	assert.Contains(t, failures[0].Error, "transcript.json")
	assert.Equal(t, "scan", failures[1].AssetID)
	assert.Equal(t, AssetPDF, failures[1].AssetType)
}

func TestScanner_LoadOutlineRejectsTraversal(t *testing.T) {
	_, err := NewScanner(t.TempDir()).LoadOutline("../etc")
	assert.True(t, errors.Is(err, ErrOutlineNotFound))
}

func TestArchive_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, OutlineFile)
	require.NoError(t, Archive(path, &Outline{AssetID: "a", Title: "t"}))
	require.NoError(t, Archive(path, &Outline{AssetID: "a", Title: "t2"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"t2"`)
}

func TestSynthesizer_SplitsLongContext(t *testing.T) {
	client := &llm.FakeClient{Respond: func(msgs []llm.Message, _ llm.Options) (string, error) {
		return `{"title":"T","outline":[{"heading":"h","anchor":"[0s]","summary":"s","sub_points":[]}]}`, nil
	}}
	s := NewSynthesizer(client, 500, 50, nil)

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("[1s]: a line of transcript text\n")
	}
	out, err := s.Synthesize(context.Background(), AssetTask{AssetID: "v", AssetType: AssetVideo, RawContext: b.String()})
	require.NoError(t, err)

	calls := client.Calls()
	require.Greater(t, len(calls), 1)
	assert.Len(t, out.Outline, len(calls))
	assert.Equal(t, "T", out.Title)
	for _, c := range calls {
		assert.True(t, c.Opts.JSON)
	}
}

func TestWatcher_DebouncesIntoOneTrigger(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w, err := NewWatcher(dir, 100*time.Millisecond, func(context.Context) { fired.Add(1) }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lecture.mp4"), []byte{byte(i)}, 0640))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ignored"), []byte("x"), 0640))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())

	cancel()
	assert.NoError(t, <-done)
}
