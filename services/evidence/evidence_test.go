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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
)

func ts(v float64) *float64 { return &v }

func TestRerank(t *testing.T) {
	hits := []Evidence{
		{Score: 0.50, Content: "unrelated slide", Metadata: Metadata{Modality: ModalityPDF}},
		{Score: 0.45, Content: "the DDL for the course", Metadata: Metadata{Modality: ModalityPDF}},
		{Score: 0.48, Content: "speaker talks", Metadata: Metadata{Modality: ModalityVideo, Type: TypeTranscript}},
		{Score: 0.10, Content: "tail", Metadata: Metadata{Modality: ModalityVideo, Type: "keyframe"}},
	}

	out := Rerank("ddl", hits, 3)

	require.Len(t, out, 3)
	assert.Equal(t, "the DDL for the course", out[0].Content)
	assert.InDelta(t, 0.60, out[0].Score, 1e-9)
	assert.Equal(t, "speaker talks", out[1].Content)
	assert.InDelta(t, 0.53, out[1].Score, 1e-9)
	assert.Equal(t, "unrelated slide", out[2].Content)
}

func TestRerank_StableOnTies(t *testing.T) {
	hits := []Evidence{{Score: 0.3, Content: "a"}, {Score: 0.3, Content: "b"}}
	out := Rerank("zzz", hits, 0)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, "b", out[1].Content)
}

type fakeSearcher struct {
	result dispatch.Result
	err    error
	gotK   int
	gotID  string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, topK int, assetID string) (dispatch.Result, error) {
	f.gotK, f.gotID = topK, assetID
	return f.result, f.err
}

func TestWorkerStore_DecodesRankedList(t *testing.T) {
	payload, err := json.Marshal([]Evidence{
		{Score: 0.2, Content: "low", Metadata: Metadata{AssetID: "v1", Modality: ModalityVideo, Timestamp: ts(10)}},
		{Score: 0.9, Content: "high", Metadata: Metadata{AssetID: "v1", Modality: ModalityVideo, Timestamp: ts(185)}},
	})
	require.NoError(t, err)
	fs := &fakeSearcher{result: dispatch.Result{Status: dispatch.StatusSuccess, Payload: payload}}

	s := NewWorkerStore(fs, 5)
	out, err := s.Search(context.Background(), Query{Text: "q", AssetID: "v1"})
	require.NoError(t, err)

	assert.Equal(t, 5, fs.gotK)
	assert.Equal(t, "v1", fs.gotID)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Content)
	assert.Equal(t, 185.0, *out[0].Metadata.Timestamp)
}

func TestWorkerStore_AcceptsFloatPageLabel(t *testing.T) {
	payload := []byte(`[
		{"score":0.9,"content":"page text","metadata":{"asset_id":"p1","modality":"pdf","timestamp":null,"page_label":3.0}},
		{"score":0.4,"content":"frame","metadata":{"asset_id":"v1","modality":"video","timestamp":12.5,"page_label":null}}
	]`)
	fs := &fakeSearcher{result: dispatch.Result{Status: dispatch.StatusSuccess, Payload: payload}}

	out, err := NewWorkerStore(fs, 5).Search(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.NotNil(t, out[0].Metadata.PageLabel)
	assert.Equal(t, 3, *out[0].Metadata.PageLabel)
	assert.Nil(t, out[0].Metadata.Timestamp)
	assert.Equal(t, ModalityPDF, out[0].Metadata.Modality)
	assert.Equal(t, "p1", out[0].Metadata.AssetID)

	assert.Nil(t, out[1].Metadata.PageLabel)
	assert.Equal(t, 12.5, *out[1].Metadata.Timestamp)
}

func TestWorkerStore_ErrorStatusIsSearchError(t *testing.T) {
	fs := &fakeSearcher{result: dispatch.Result{Status: dispatch.StatusError, Message: "milvus down"}}
	_, err := NewWorkerStore(fs, 5).Search(context.Background(), Query{Text: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearch))
	assert.Contains(t, err.Error(), "milvus down")

	fs = &fakeSearcher{err: errors.New("boom")}
	_, err = NewWorkerStore(fs, 5).Search(context.Background(), Query{Text: "q"})
	assert.True(t, errors.Is(err, ErrSearch))
}

func weaviateServer(t *testing.T, seen *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/v1/graphql" {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		*seen = string(body)
		_, _ = w.Write([]byte(`{"data":{"Get":{"EvidenceChunk":[
			{"content":"frame caption","assetId":"v1","modality":"video","contentType":"keyframe","timestamp":30,"_additional":{"score":"0.9"}},
			{"content":"we discuss entropy here","assetId":"v1","modality":"video","contentType":"transcript_context","timestamp":185,"_additional":{"score":"0.8"}},
			{"content":"page text","assetId":"p1","modality":"pdf","contentType":"text","pageLabel":3,"_additional":{"score":"0.1"}}
		]}}}`))
	}))
}

func TestWeaviateStore_SearchReranksAndFilters(t *testing.T) {
	var seen string
	srv := weaviateServer(t, &seen)
	defer srv.Close()

	s, err := NewWeaviateStore(WeaviateConfig{URL: srv.URL, Class: "EvidenceChunk", TopK: 2})
	require.NoError(t, err)

	out, err := s.Search(context.Background(), Query{Text: "entropy", AssetID: "v1"})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "we discuss entropy here", out[0].Content)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.Equal(t, 185.0, *out[0].Metadata.Timestamp)
	assert.Equal(t, "frame caption", out[1].Content)

	assert.Contains(t, seen, "bm25")
	assert.True(t, strings.Contains(seen, "assetId"))
}

func TestNewWeaviateStore_Validates(t *testing.T) {
	_, err := NewWeaviateStore(WeaviateConfig{Class: "C"})
	assert.Error(t, err)
	_, err = NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.EvidenceConfig{Backend: "worker", TopK: 3}, &fakeSearcher{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &WorkerStore{}, s)

	_, err = Open(config.EvidenceConfig{Backend: "worker"}, nil, nil)
	assert.Error(t, err)

	s, err = Open(config.EvidenceConfig{Backend: "weaviate", Weaviate: config.WeaviateConfig{URL: "http://localhost:8080", Class: "EvidenceChunk"}}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &WeaviateStore{}, s)

	_, err = Open(config.EvidenceConfig{Backend: "milvus"}, nil, nil)
	assert.Error(t, err)
}
