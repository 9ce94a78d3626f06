// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/gate"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   []byte
}

// fakeServer answers every request with status and body and records it.
func fakeServer(t *testing.T, status int, body any) (*[]recorded, func()) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		reqs = append(reqs, recorded{r.Method, r.URL.RequestURI(), r.Header.Get("Authorization"), data})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))

	prevServer, prevJSON := serverURL, jsonOutput
	serverURL, jsonOutput = srv.URL, false
	return &reqs, func() {
		srv.Close()
		serverURL, jsonOutput = prevServer, prevJSON
	}
}

func testCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func resetIngestFlags(t *testing.T) {
	t.Cleanup(func() {
		ingestType, ingestVideo, ingestPDF, ingestPath, forceReset = "video", "", "", "", false
	})
}

func TestBuildTarget(t *testing.T) {
	resetIngestFlags(t)

	ingestType = "video"
	tgt := buildTarget([]string{"lec1"})
	assert.Equal(t, ingestion.AssetVideo, tgt.AssetType)
	assert.Equal(t, "lec1", tgt.VideoID)
	assert.Equal(t, "lec1", tgt.AssetID)

	ingestType = "pdf"
	tgt = buildTarget([]string{"notes"})
	assert.Equal(t, "notes", tgt.PDFID)
	assert.Empty(t, tgt.VideoID)

	ingestType, ingestVideo, ingestPDF = "all", "lec1", "notes"
	tgt = buildTarget(nil)
	assert.Equal(t, ingestion.AssetAll, tgt.AssetType)
	assert.Equal(t, "lec1", tgt.VideoID)
	assert.Equal(t, "notes", tgt.PDFID)
	assert.Empty(t, tgt.AssetID)
}

func TestRunIngest_SendsTargetAndToken(t *testing.T) {
	resetIngestFlags(t)
	t.Setenv("ACADEMIC_API_TOKEN", "s3cret")
	reqs, done := fakeServer(t, http.StatusOK, dispatch.Result{Status: dispatch.StatusSuccess, Message: "indexed 12 chunks"})
	defer done()

	cmd, out := testCmd()
	require.NoError(t, runIngest(cmd, []string{"lec1"}))

	require.Len(t, *reqs, 1)
	r := (*reqs)[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/v1/ingest", r.path)
	assert.Equal(t, "Bearer s3cret", r.auth)
	assert.JSONEq(t, `{"asset_type":"video","asset_id":"lec1","video_id":"lec1"}`, string(r.body))
	assert.Contains(t, out.String(), "indexed 12 chunks")
}

func TestRunIngest_IndexFailurePrintsResult(t *testing.T) {
	resetIngestFlags(t)
	_, done := fakeServer(t, http.StatusBadGateway, dispatch.Result{Status: dispatch.StatusError, Message: "collection locked"})
	defer done()

	cmd, out := testCmd()
	err := runIngest(cmd, []string{"lec1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection locked")
	assert.Contains(t, out.String(), "✗ error")
}

func TestDeniedMapsToExitCode(t *testing.T) {
	holder := gate.Occupancy{Status: gate.StatusIngesting, TaskID: "lec1"}
	_, done := fakeServer(t, http.StatusConflict, handlers.ErrorResponse{
		Error: "admission denied", Code: "admission_denied", Holder: &holder,
	})
	defer done()

	cmd, _ := testCmd()
	err := runStatus(cmd, nil)
	require.Error(t, err)
	assert.Equal(t, exitDenied, exitCode(err))
	assert.Contains(t, err.Error(), `gate is INGESTING for "lec1"`)
}

func TestRunAsk_PrintsAnswerAndSources(t *testing.T) {
	page := 3
	reqs, done := fakeServer(t, http.StatusOK, handlers.AskResponse{
		ThreadID: "t-1",
		Status:   reasoning.StatusCompleted,
		Answer:   "A limit describes approach.",
		Citations: []reasoning.Citation{
			{AssetID: "notes", PageNumber: &page},
			{AssetID: "lec1", Label: "03:05"},
		},
	})
	defer done()
	t.Cleanup(func() { askThread, askAsset, askStream = "", "", false })
	askThread = "t-1"

	cmd, out := testCmd()
	require.NoError(t, runAsk(cmd, []string{"what", "is", "a", "limit?"}))

	var sent reasoning.Request
	require.NoError(t, json.Unmarshal((*reqs)[0].body, &sent))
	assert.Equal(t, "what is a limit?", sent.Query)
	assert.Equal(t, "t-1", sent.ThreadID)

	text := out.String()
	assert.Contains(t, text, "A limit describes approach.")
	assert.Contains(t, text, "notes p.3")
	assert.Contains(t, text, "lec1 @03:05")
}

func TestRunStatus_JSONFlag(t *testing.T) {
	_, done := fakeServer(t, http.StatusOK, handlers.StatusResponse{
		Occupancy:  gate.Occupancy{Status: gate.StatusIdle},
		Admissible: true,
	})
	defer done()
	jsonOutput = true

	cmd, out := testCmd()
	require.NoError(t, runStatus(cmd, nil))
	assert.JSONEq(t, `{"status":"IDLE","since":"0001-01-01T00:00:00Z","admissible":true}`, out.String())
}

func TestRunTrip_SendsReason(t *testing.T) {
	reqs, done := fakeServer(t, http.StatusOK, handlers.StatusResponse{
		Occupancy: gate.Occupancy{Status: gate.StatusError, Reason: "gpu fault", Since: time.Now()},
	})
	defer done()

	cmd, out := testCmd()
	require.NoError(t, runTrip(cmd, []string{"gpu", "fault"}))
	assert.JSONEq(t, `{"reason":"gpu fault"}`, string((*reqs)[0].body))
	assert.Contains(t, out.String(), "Gate: ERROR")
	assert.Contains(t, out.String(), "Admissible: false")
}

func TestRunSweep_QueryFlags(t *testing.T) {
	reqs, done := fakeServer(t, http.StatusAccepted, map[string]any{"status": "accepted"})
	defer done()
	t.Cleanup(func() { sweepForce, sweepAsync = false, false })
	sweepForce, sweepAsync = true, true

	cmd, out := testCmd()
	require.NoError(t, runSweep(cmd, nil))
	assert.Equal(t, "/v1/ingest/sweep?async=true&force=true", (*reqs)[0].path)
	assert.Contains(t, out.String(), "background")
}
