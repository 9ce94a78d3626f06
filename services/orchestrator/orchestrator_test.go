// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
	store "github.com/AleutianAI/AcademicAgent/pkg/storage/badger"
	"github.com/AleutianAI/AcademicAgent/services/checkpoint"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/evidence"
	"github.com/AleutianAI/AcademicAgent/services/gate"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/llm"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fakes
// =============================================================================

type fakeSteps struct {
	mu      sync.Mutex
	calls   []string
	results map[string]dispatch.Result
}

func (f *fakeSteps) record(name string) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return dispatch.Result{Status: dispatch.StatusSuccess, Message: name + " done"}, nil
}

func (f *fakeSteps) ParseDocument(context.Context, string) (dispatch.Result, error) {
	return f.record("parse")
}

func (f *fakeSteps) SliceVideo(context.Context, string) (dispatch.Result, error) {
	return f.record("slice")
}

func (f *fakeSteps) Transcribe(context.Context, string) (dispatch.Result, error) {
	return f.record("transcribe")
}

func (f *fakeSteps) Index(context.Context, string, string, bool) (dispatch.Result, error) {
	return f.record("index")
}

type staticEvidence []evidence.Evidence

func (s staticEvidence) Search(context.Context, evidence.Query) ([]evidence.Evidence, error) {
	return append([]evidence.Evidence(nil), s...), nil
}

type noTools struct{}

func (noTools) Inspect(context.Context, string, string) (string, error) { return "", nil }

func (noTools) Evaluate(context.Context, string, string, string) (string, error) { return "", nil }

// =============================================================================
// Harness
// =============================================================================

type testEnv struct {
	root  string
	cfg   config.Config
	comps *Components
	steps *fakeSteps
	svc   *Service
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = root
	cfg.Server.APIToken = token

	g := gate.New()
	steps := &fakeSteps{results: map[string]dispatch.Result{}}
	client := &llm.FakeClient{Respond: llm.Route(map[string]string{
		"query refiner":    "limit definition",
		"task planner":     `{"need_vision": false, "need_sandbox": false, "reason": "text is enough"}`,
		"evidence auditor": `{"action": "proceed", "relevance": 0.8}`,
		"academic writer":  "A limit describes approach [notes p.3].",
		"study outline":    `{"title": "Limits", "outline": []}`,
	})}

	cs, err := checkpoint.OpenBadgerStore(store.InMemoryConfig())
	require.NoError(t, err)

	page := 2
	docs := staticEvidence{{
		Score:    0.9,
		Content:  "the limit of f as x approaches a",
		Metadata: evidence.Metadata{AssetID: "notes", Modality: evidence.ModalityPDF, PageLabel: &page},
	}}

	hub := handlers.NewHub(nil)
	wf, err := reasoning.NewWorkflow(g, cs, reasoning.Deps{
		LLM:      client,
		Evidence: docs,
		Vision:   noTools{},
		Sandbox:  noTools{},
		Frames:   reasoning.NewFrameLocator(root),
		TopK:     3,
	}, reasoning.WithObserver(hub.Publish))
	require.NoError(t, err)

	scanner := ingestion.NewScanner(root)
	comps := &Components{
		Gate:        g,
		Pipeline:    ingestion.NewPipeline(g, steps, scanner, ingestion.NewSynthesizer(client, 2000, 100, nil), nil),
		Workflow:    wf,
		Checkpoints: cs,
		Hub:         hub,
	}
	t.Cleanup(func() { _ = comps.Close() })

	return &testEnv{
		root:  root,
		cfg:   cfg,
		comps: comps,
		steps: steps,
		svc:   New(&cfg, comps, nil, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.svc.Router().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// Tests
// =============================================================================

func TestAuth_HealthOpenAPIProtected(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/system/status", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/v1/system/status", nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/system/status", nil, "s3cret").Code)
}

func TestIngest_VideoRunsStepsInOrder(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/v1/ingest", ingestion.Target{AssetType: ingestion.AssetVideo, VideoID: "lec1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decodeBody[dispatch.Result](t, w)
	assert.Equal(t, dispatch.StatusSuccess, res.Status)
	assert.Equal(t, []string{"slice", "transcribe", "index"}, env.steps.calls)
	assert.Equal(t, gate.StatusIdle, env.comps.Gate.Snapshot().Status)
}

func TestIngest_RejectsBadTargets(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/v1/ingest", ingestion.Target{AssetType: "audio", AssetID: "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeBody[handlers.ErrorResponse](t, w).Code)

	w = env.do(t, http.MethodPost, "/v1/ingest", ingestion.Target{AssetType: ingestion.AssetPDF}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.steps.calls)
}

func TestIngest_IndexErrorIsBadGateway(t *testing.T) {
	env := newTestEnv(t, "")
	env.steps.results["index"] = dispatch.Result{Status: dispatch.StatusError, Message: "collection locked"}

	w := env.do(t, http.MethodPost, "/v1/ingest", ingestion.Target{AssetType: ingestion.AssetPDF, PDFID: "notes"}, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "collection locked", decodeBody[dispatch.Result](t, w).Message)
}

func TestAsk_DeniedWhileIngesting(t *testing.T) {
	env := newTestEnv(t, "")
	lease, err := env.comps.Gate.Acquire(gate.TrackIngestion, "lec1")
	require.NoError(t, err)
	defer lease.Release()

	w := env.do(t, http.MethodPost, "/v1/reasoning/ask", reasoning.Request{Query: "what is a limit?"}, "")
	require.Equal(t, http.StatusConflict, w.Code)

	body := decodeBody[handlers.ErrorResponse](t, w)
	assert.Equal(t, "admission_denied", body.Code)
	require.NotNil(t, body.Holder)
	assert.Equal(t, gate.StatusIngesting, body.Holder.Status)
	assert.Equal(t, "lec1", body.Holder.TaskID)
}

func TestAsk_CompletesAndThreadLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/v1/reasoning/ask", reasoning.Request{Query: "what is a limit?", ThreadID: "t-1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody[handlers.AskResponse](t, w)
	assert.Equal(t, "t-1", resp.ThreadID)
	assert.Equal(t, reasoning.StatusCompleted, resp.Status)
	assert.Contains(t, resp.Answer, "limit")
	require.Len(t, resp.Citations, 1)
	assert.NotEmpty(t, resp.ReasoningChain)

	w = env.do(t, http.MethodGet, "/v1/reasoning/threads/t-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	thread := decodeBody[reasoning.Thread](t, w)
	assert.Equal(t, string(reasoning.NodeEnd), thread.Next)
	assert.NotEmpty(t, thread.History)

	// A finished run resumes to itself.
	w = env.do(t, http.MethodPost, "/v1/reasoning/resume/t-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reasoning.StatusCompleted, decodeBody[handlers.AskResponse](t, w).Status)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/v1/reasoning/threads/t-1", nil, "").Code)
	w = env.do(t, http.MethodGet, "/v1/reasoning/threads/t-1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "thread_not_found", decodeBody[handlers.ErrorResponse](t, w).Code)
}

func TestAsk_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, "")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/reasoning/ask", map[string]string{}, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPost, "/v1/reasoning/ask", reasoning.Request{Query: "q", ThreadID: "bad thread"}, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/reasoning/resume/nobody", nil, "").Code)
}

func TestSystem_TripBlocksUntilRelease(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/v1/system/trip", handlers.TripRequest{Reason: "gpu fault"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[handlers.StatusResponse](t, w)
	assert.Equal(t, gate.StatusError, status.Status)
	assert.Equal(t, "gpu fault", status.Reason)
	assert.False(t, status.Admissible)

	w = env.do(t, http.MethodPost, "/v1/reasoning/ask", reasoning.Request{Query: "what is a limit?"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/v1/system/release", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status = decodeBody[handlers.StatusResponse](t, w)
	assert.Equal(t, gate.StatusIdle, status.Status)
	assert.True(t, status.Admissible)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/system/trip", map[string]string{}, "").Code)
}

func TestAssets_ListAndOutline(t *testing.T) {
	env := newTestEnv(t, "")

	done := filepath.Join(env.root, "processed", "video", "lec1")
	require.NoError(t, os.MkdirAll(done, 0o755))
	outline := ingestion.Outline{AssetID: "lec1", AssetType: ingestion.AssetVideo, Title: "Derivatives"}
	data, err := json.Marshal(outline)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(done, ingestion.OutlineFile), data, 0o644))

	pending := filepath.Join(env.root, "processed", "video", "lec2")
	require.NoError(t, os.MkdirAll(pending, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pending, "transcript.json"),
		[]byte(`{"segments": [{"start": 0, "end": 4, "text": "welcome"}]}`), 0o644))

	w := env.do(t, http.MethodGet, "/v1/assets", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[handlers.AssetsResponse](t, w)
	require.Len(t, list.Outlines, 1)
	assert.Equal(t, "lec1", list.Outlines[0].AssetID)
	assert.Equal(t, []string{"lec2"}, list.Pending)

	w = env.do(t, http.MethodGet, "/v1/assets/lec1/outline", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Derivatives", decodeBody[ingestion.Outline](t, w).Title)

	w = env.do(t, http.MethodGet, "/v1/assets/lec9/outline", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "outline_not_found", decodeBody[handlers.ErrorResponse](t, w).Code)
}

func TestSweep_NothingPending(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/v1/ingest/sweep", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decodeBody[ingestion.SweepReport](t, w)
	assert.Zero(t, report.Pending)
	assert.Empty(t, report.Failed)
}

func TestStream_DeliversWorkflowEvents(t *testing.T) {
	env := newTestEnv(t, "")
	srv := httptest.NewServer(env.svc.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/reasoning/stream?thread=t-live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return env.comps.Hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	body, err := json.Marshal(reasoning.Request{Query: "what is a limit?", ThreadID: "t-live"})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/reasoning/ask", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []reasoning.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var e reasoning.Event
		require.NoError(t, conn.ReadJSON(&e))
		events = append(events, e)
		if e.Next == reasoning.NodeEnd {
			break
		}
	}
	assert.Equal(t, reasoning.NodeResearch, events[0].Node)
	assert.Equal(t, reasoning.NodeSynthesize, events[len(events)-1].Node)
	assert.Equal(t, reasoning.StatusCompleted, events[len(events)-1].Status)
	for _, e := range events {
		assert.Equal(t, "t-live", e.ThreadID)
	}
}

func TestBuild_RequiresLLMKey(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Checkpoint.Badger.InMemory = true
	cfg.LLM.APIKey = ""

	_, err := Build(context.Background(), &cfg, nil)
	assert.Error(t, err)
}

func TestBuild_WiresComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	cfg.Checkpoint.Badger.InMemory = true
	cfg.LLM.APIKey = "sk-test"

	comps, err := Build(context.Background(), &cfg, nil)
	require.NoError(t, err)
	defer comps.Close()

	assert.NotNil(t, comps.Workflow)
	assert.NotNil(t, comps.Pipeline)
	assert.Equal(t, gate.StatusIdle, comps.Gate.Snapshot().Status)
}
