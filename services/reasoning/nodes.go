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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AcademicAgent/services/evidence"
	"github.com/AleutianAI/AcademicAgent/services/llm"
)

// Inspector is the vision worker. *dispatch.Workers implements it.
type Inspector interface {
	Inspect(ctx context.Context, imagePath, prompt string) (string, error)
}

// Evaluator is the symbolic sandbox worker. *dispatch.Workers implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, expression, mode, symbol string) (string, error)
}

// Deps are the collaborators the nodes call. All are required.
type Deps struct {
	LLM      llm.Client
	Evidence evidence.Store
	Vision   Inspector
	Sandbox  Evaluator
	Frames   *FrameLocator

	// TopK is the evidence count per search. Zero uses the store default.
	TopK int

	Logger *slog.Logger
}

// Feedback values recorded by the vision and logic nodes.
const (
	FeedbackNotFound       = "not found"
	VerificationNoEquation = "no verifiable expression"
)

// Node is one workflow step. Run receives a projection of the state that
// holds only Reads and returns a Diff that may touch only Writes.
type Node struct {
	ID     NodeID
	Reads  Fields
	Writes Fields
	Run    func(ctx context.Context, view State) (Diff, error)
}

// checkWrites rejects a diff touching undeclared fields.
func (n Node) checkWrites(d Diff) error {
	if extra := d.Touched() &^ n.Writes; extra != 0 {
		return fmt.Errorf("%w: %s wrote %s", ErrUndeclaredWrite, n.ID, extra)
	}
	return nil
}

// buildNodes returns the node table over deps.
func buildNodes(deps Deps) map[NodeID]Node {
	r := &runner{deps: deps}
	return map[NodeID]Node{
		NodeResearch: {
			ID:     NodeResearch,
			Reads:  FieldQuery | FieldAssetID | FieldEvalReport | FieldRetryCount,
			Writes: FieldRefinedQuery | FieldRetrievedDocs | FieldCitations | FieldHasVideo | FieldManifest | FieldStatus | FieldError | FieldChain,
			Run:    r.research,
		},
		NodeEvaluate: {
			ID:     NodeEvaluate,
			Reads:  FieldQuery | FieldRetrievedDocs | FieldManifest | FieldRetryCount,
			Writes: FieldEvalReport | FieldManifest | FieldRetryCount | FieldChain,
			Run:    r.evaluate,
		},
		NodeVision: {
			ID:     NodeVision,
			Reads:  FieldQuery | FieldRetrievedDocs | FieldManifest,
			Writes: FieldVisionFeedback | FieldChain,
			Run:    r.vision,
		},
		NodeLogic: {
			ID:     NodeLogic,
			Reads:  FieldQuery | FieldRetrievedDocs,
			Writes: FieldVerification | FieldChain,
			Run:    r.logic,
		},
		NodeSynthesize: {
			ID:     NodeSynthesize,
			Reads:  FieldQuery | FieldRetrievedDocs | FieldCitations | FieldVisionFeedback | FieldVerification | FieldEvalReport,
			Writes: FieldCitations | FieldAnswer | FieldStatus | FieldChain,
			Run:    r.synthesize,
		},
	}
}

type runner struct {
	deps Deps
}

// research refines the query, searches, builds citations and plans.
func (r *runner) research(ctx context.Context, s State) (Diff, error) {
	var d Diff

	critique := ""
	if s.EvalReport != nil && s.EvalReport.Action == ActionRefetch {
		critique = s.EvalReport.Critique
	}
	user, err := render("refine", promptData{Query: s.Query, Critique: critique})
	if err != nil {
		return d, err
	}
	refined, err := r.deps.LLM.Chat(ctx, []llm.Message{llm.System(refineSystem), llm.User(user)}, llm.Options{})
	if err != nil {
		return d, fmt.Errorf("refine query: %w", err)
	}
	refined = strings.Trim(strings.TrimSpace(refined), `"`)
	if refined == "" {
		refined = s.Query
	}
	d.SetRefinedQuery(refined)

	docs, err := r.deps.Evidence.Search(ctx, evidence.Query{Text: refined, TopK: r.deps.TopK, AssetID: s.AssetID})
	if err != nil {
		d.Fail(fmt.Sprintf("search failed: %v", err))
		d.Log("research: search failed for %q: %v", refined, err)
		return d, nil
	}
	d.SetRetrievedDocs(docs)
	d.SetCitations(BuildCitations(docs))

	hasVideo := false
	for _, doc := range docs {
		if doc.Metadata.Modality == evidence.ModalityVideo {
			hasVideo = true
			break
		}
	}
	d.SetHasVideo(hasVideo)

	plan, err := render("plan", promptData{Query: s.Query, Docs: docs})
	if err != nil {
		return d, err
	}
	var m Manifest
	if err := llm.ChatJSON(ctx, r.deps.LLM, []llm.Message{llm.System(planSystem), llm.User(plan)}, llm.Options{}, &m); err != nil {
		return d, fmt.Errorf("plan task: %w", err)
	}
	d.SetManifest(m)
	d.Log("research: query %q returned %d docs (video=%t); plan need_vision=%t need_sandbox=%t",
		refined, len(docs), hasVideo, m.NeedVision, m.NeedSandbox)
	return d, nil
}

// evaluate audits the evidence and enforces the retry cap.
func (r *runner) evaluate(ctx context.Context, s State) (Diff, error) {
	var d Diff

	user, err := render("evaluate", promptData{Query: s.Query, Docs: s.RetrievedDocs, Manifest: s.Manifest, RetryCount: s.RetryCount})
	if err != nil {
		return d, err
	}
	var rep EvalReport
	if err := llm.ChatJSON(ctx, r.deps.LLM, []llm.Message{llm.System(evaluateSystem), llm.User(user)}, llm.Options{}, &rep); err != nil {
		return d, fmt.Errorf("evaluate evidence: %w", err)
	}
	rep.Action = Action(strings.ToLower(strings.TrimSpace(string(rep.Action))))
	if rep.Action != ActionRefetch {
		rep.Action = ActionProceed
	}

	m := s.Manifest
	if rep.Overrides.NeedVision != nil {
		m.NeedVision = *rep.Overrides.NeedVision
	}
	if rep.Overrides.NeedSandbox != nil {
		m.NeedSandbox = *rep.Overrides.NeedSandbox
	}
	if m != s.Manifest {
		d.SetManifest(m)
	}

	switch {
	case rep.Action == ActionRefetch && s.RetryCount < MaxRetries:
		d.SetRetryCount(s.RetryCount + 1)
		d.Log("evaluate: evidence insufficient (relevance %.2f), refetch %d/%d: %s",
			rep.Relevance, s.RetryCount+1, MaxRetries, rep.Critique)
	case rep.Action == ActionRefetch:
		rep.Action = ActionProceed
		d.Log("evaluate: retry limit %d reached, proceeding with current evidence", MaxRetries)
	default:
		d.Log("evaluate: proceed (relevance %.2f)", rep.Relevance)
	}
	d.SetEvalReport(rep)
	return d, nil
}

// vision inspects the key frame of the top video evidence. Every failure
// here is soft.
func (r *runner) vision(ctx context.Context, s State) (Diff, error) {
	var d Diff

	var top *evidence.Evidence
	for i := range s.RetrievedDocs {
		doc := &s.RetrievedDocs[i]
		if doc.Metadata.Modality != evidence.ModalityVideo || doc.Metadata.Timestamp == nil {
			continue
		}
		if top == nil || doc.Score > top.Score {
			top = doc
		}
	}
	if top == nil {
		d.SetVisionFeedback(FeedbackNotFound)
		d.Log("vision: no timestamped video evidence")
		return d, nil
	}

	ts := *top.Metadata.Timestamp
	frame, err := r.deps.Frames.Resolve(top.Metadata.AssetID, ts)
	if err != nil {
		d.SetVisionFeedback(FeedbackNotFound)
		d.Log("vision: frame for %s at %s not found", top.Metadata.AssetID, FormatTimestamp(ts))
		return d, nil
	}

	prompt := VisionInstruction(s.Manifest.VisionStrategy) + "\n\nQuestion: " + s.Query
	feedback, err := r.deps.Vision.Inspect(ctx, frame, prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return d, err
		}
		d.SetVisionFeedback("vision failed: " + err.Error())
		d.Log("vision: inspection of %s failed: %v", frame, err)
		return d, nil
	}
	d.SetVisionFeedback(strings.TrimSpace(feedback))
	d.Log("vision: inspected %s at %s (%s)", top.Metadata.AssetID, FormatTimestamp(ts), strategyName(s.Manifest.VisionStrategy))
	return d, nil
}

func strategyName(s string) string {
	if _, ok := visionInstructions[strings.ToLower(strings.TrimSpace(s))]; ok {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return "scene"
}

// logic extracts one expression and checks it in the sandbox.
func (r *runner) logic(ctx context.Context, s State) (Diff, error) {
	var d Diff

	var material strings.Builder
	for _, doc := range s.RetrievedDocs {
		material.WriteString(doc.Content)
		material.WriteString("\n")
	}
	user, err := render("logic", promptData{Query: s.Query, Material: strings.TrimSpace(material.String())})
	if err != nil {
		return d, err
	}
	var ext struct {
		Expression string `json:"expression"`
		Mode       string `json:"mode"`
		Symbol     string `json:"symbol"`
	}
	if err := llm.ChatJSON(ctx, r.deps.LLM, []llm.Message{llm.System(logicSystem), llm.User(user)}, llm.Options{}, &ext); err != nil {
		return d, fmt.Errorf("extract expression: %w", err)
	}

	expr := strings.TrimSpace(ext.Expression)
	if expr == "" {
		d.SetVerification(VerificationNoEquation)
		d.Log("logic: %s", VerificationNoEquation)
		return d, nil
	}
	mode := ext.Mode
	if mode == "" {
		mode = "simplify"
	}
	result, err := r.deps.Sandbox.Evaluate(ctx, expr, mode, ext.Symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return d, err
		}
		d.SetVerification(fmt.Sprintf("%s => verification failed: %v", expr, err))
		d.Log("logic: sandbox failed on %q: %v", expr, err)
		return d, nil
	}
	d.SetVerification(fmt.Sprintf("%s => %s", expr, result))
	d.Log("logic: %s %s => %s", mode, expr, result)
	return d, nil
}

// synthesize writes the final answer.
func (r *runner) synthesize(ctx context.Context, s State) (Diff, error) {
	var d Diff

	citations := NormalizeCitations(s.Citations)
	d.SetCitations(citations)

	critique := ""
	if s.EvalReport != nil {
		critique = s.EvalReport.Critique
	}
	user, err := render("synthesize", promptData{
		Query:          s.Query,
		Docs:           s.RetrievedDocs,
		Citations:      citations,
		VisionFeedback: s.VisionFeedback,
		Verification:   s.VerificationResult,
		Critique:       critique,
	})
	if err != nil {
		return d, err
	}
	answer, err := r.deps.LLM.Chat(ctx, []llm.Message{llm.System(synthesizeSystem), llm.User(user)}, llm.Options{})
	if err != nil {
		return d, fmt.Errorf("synthesize answer: %w", err)
	}
	d.SetAnswer(strings.TrimSpace(answer))
	d.SetStatus(StatusCompleted)
	d.Log("synthesize: answer composed from %d docs with %d citations", len(s.RetrievedDocs), len(citations))
	return d, nil
}
