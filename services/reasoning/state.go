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
	"strings"

	"github.com/AleutianAI/AcademicAgent/services/evidence"
)

// Status of a workflow run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Action is the evaluator's verdict on the retrieved evidence.
type Action string

const (
	ActionProceed Action = "proceed"

	// ActionRefetch signals insufficient evidence. It drives a bounded
	// retry of the research node and is never surfaced as an error.
	ActionRefetch Action = "refetch"
)

// MaxRetries caps how often the evaluator can send the run back to research.
const MaxRetries = 2

// Manifest declares which optional nodes the question needs.
type Manifest struct {
	NeedVision     bool   `json:"need_vision"`
	NeedSandbox    bool   `json:"need_sandbox"`
	VisionStrategy string `json:"vision_strategy,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Overrides are evaluator corrections to the manifest. Nil leaves the
// planner's choice in place.
type Overrides struct {
	NeedVision  *bool `json:"need_vision,omitempty"`
	NeedSandbox *bool `json:"need_sandbox,omitempty"`
}

// EvalReport is the evaluator's structured verdict.
type EvalReport struct {
	Action    Action    `json:"action"`
	Relevance float64   `json:"relevance"`
	Critique  string    `json:"critique,omitempty"`
	Overrides Overrides `json:"overrides"`
}

// State is the full state of one reasoning run. It is checkpointed as JSON
// after every node.
//
// Invariants: RetryCount never decreases and never exceeds MaxRetries;
// ReasoningChain is append-only; Citations are deduplicated and sorted
// before synthesis.
type State struct {
	Query        string `json:"query"`
	ThreadID     string `json:"thread_id"`
	AssetID      string `json:"asset_id,omitempty"`
	RefinedQuery string `json:"refined_query,omitempty"`

	RetrievedDocs []evidence.Evidence `json:"retrieved_docs,omitempty"`
	Citations     []Citation          `json:"citations,omitempty"`
	Manifest      Manifest            `json:"manifest"`
	HasVideo      bool                `json:"has_video"`

	VisionFeedback     string      `json:"vision_feedback,omitempty"`
	VerificationResult string      `json:"verification_result,omitempty"`
	EvalReport         *EvalReport `json:"eval_report,omitempty"`
	RetryCount         int         `json:"retry_count"`

	ReasoningChain []string `json:"reasoning_chain"`
	Status         Status   `json:"status"`
	Answer         string   `json:"answer,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Field is one State field, used to declare what a node reads and writes.
type Field uint32

// Fields is a set of Field values.
type Fields = Field

const (
	FieldQuery Field = 1 << iota
	FieldThreadID
	FieldAssetID
	FieldRefinedQuery
	FieldRetrievedDocs
	FieldCitations
	FieldManifest
	FieldHasVideo
	FieldVisionFeedback
	FieldVerification
	FieldEvalReport
	FieldRetryCount
	FieldChain
	FieldStatus
	FieldAnswer
	FieldError
)

var fieldNames = []string{
	"query", "thread_id", "asset_id", "refined_query", "retrieved_docs",
	"citations", "manifest", "has_video", "vision_feedback",
	"verification_result", "eval_report", "retry_count", "reasoning_chain",
	"status", "answer", "error",
}

// Has reports whether every field of g is in f.
func (f Field) Has(g Field) bool { return f&g == g }

func (f Field) String() string {
	var names []string
	for i, name := range fieldNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// Project returns a copy of s holding only the fields in f. Slices are
// copied so a node cannot mutate the engine's state through its view.
func Project(s State, f Fields) State {
	var v State
	if f.Has(FieldQuery) {
		v.Query = s.Query
	}
	if f.Has(FieldThreadID) {
		v.ThreadID = s.ThreadID
	}
	if f.Has(FieldAssetID) {
		v.AssetID = s.AssetID
	}
	if f.Has(FieldRefinedQuery) {
		v.RefinedQuery = s.RefinedQuery
	}
	if f.Has(FieldRetrievedDocs) {
		v.RetrievedDocs = append([]evidence.Evidence(nil), s.RetrievedDocs...)
	}
	if f.Has(FieldCitations) {
		v.Citations = append([]Citation(nil), s.Citations...)
	}
	if f.Has(FieldManifest) {
		v.Manifest = s.Manifest
	}
	if f.Has(FieldHasVideo) {
		v.HasVideo = s.HasVideo
	}
	if f.Has(FieldVisionFeedback) {
		v.VisionFeedback = s.VisionFeedback
	}
	if f.Has(FieldVerification) {
		v.VerificationResult = s.VerificationResult
	}
	if f.Has(FieldEvalReport) && s.EvalReport != nil {
		r := *s.EvalReport
		v.EvalReport = &r
	}
	if f.Has(FieldRetryCount) {
		v.RetryCount = s.RetryCount
	}
	if f.Has(FieldChain) {
		v.ReasoningChain = append([]string(nil), s.ReasoningChain...)
	}
	if f.Has(FieldStatus) {
		v.Status = s.Status
	}
	if f.Has(FieldAnswer) {
		v.Answer = s.Answer
	}
	if f.Has(FieldError) {
		v.Error = s.Error
	}
	return v
}

// Diff is the set of changes a node returns. Only fields set through the
// setters are applied by Merge; chain entries are appended.
type Diff struct {
	set    Fields
	values State
	chain  []string
}

// Touched returns the fields the diff writes.
func (d Diff) Touched() Fields {
	f := d.set
	if len(d.chain) > 0 {
		f |= FieldChain
	}
	return f
}

func (d *Diff) SetRefinedQuery(q string) {
	d.values.RefinedQuery, d.set = q, d.set|FieldRefinedQuery
}

func (d *Diff) SetRetrievedDocs(docs []evidence.Evidence) {
	d.values.RetrievedDocs, d.set = docs, d.set|FieldRetrievedDocs
}

func (d *Diff) SetCitations(c []Citation) {
	d.values.Citations, d.set = c, d.set|FieldCitations
}

func (d *Diff) SetManifest(m Manifest) {
	d.values.Manifest, d.set = m, d.set|FieldManifest
}

func (d *Diff) SetHasVideo(v bool) {
	d.values.HasVideo, d.set = v, d.set|FieldHasVideo
}

func (d *Diff) SetVisionFeedback(s string) {
	d.values.VisionFeedback, d.set = s, d.set|FieldVisionFeedback
}

func (d *Diff) SetVerification(s string) {
	d.values.VerificationResult, d.set = s, d.set|FieldVerification
}

func (d *Diff) SetEvalReport(r EvalReport) {
	d.values.EvalReport, d.set = &r, d.set|FieldEvalReport
}

func (d *Diff) SetRetryCount(n int) {
	d.values.RetryCount, d.set = n, d.set|FieldRetryCount
}

func (d *Diff) SetStatus(s Status) {
	d.values.Status, d.set = s, d.set|FieldStatus
}

func (d *Diff) SetAnswer(a string) {
	d.values.Answer, d.set = a, d.set|FieldAnswer
}

// Fail marks the run failed with msg.
func (d *Diff) Fail(msg string) {
	d.SetStatus(StatusError)
	d.values.Error, d.set = msg, d.set|FieldError
}

// Log appends an entry to the reasoning chain.
func (d *Diff) Log(format string, args ...any) {
	d.chain = append(d.chain, fmt.Sprintf(format, args...))
}

// Merge applies d to s and returns the result. RetryCount never decreases.
func Merge(s State, d Diff) State {
	v := d.values
	if d.set.Has(FieldRefinedQuery) {
		s.RefinedQuery = v.RefinedQuery
	}
	if d.set.Has(FieldRetrievedDocs) {
		s.RetrievedDocs = v.RetrievedDocs
	}
	if d.set.Has(FieldCitations) {
		s.Citations = v.Citations
	}
	if d.set.Has(FieldManifest) {
		s.Manifest = v.Manifest
	}
	if d.set.Has(FieldHasVideo) {
		s.HasVideo = v.HasVideo
	}
	if d.set.Has(FieldVisionFeedback) {
		s.VisionFeedback = v.VisionFeedback
	}
	if d.set.Has(FieldVerification) {
		s.VerificationResult = v.VerificationResult
	}
	if d.set.Has(FieldEvalReport) {
		s.EvalReport = v.EvalReport
	}
	if d.set.Has(FieldRetryCount) && v.RetryCount > s.RetryCount {
		s.RetryCount = v.RetryCount
	}
	if d.set.Has(FieldStatus) {
		s.Status = v.Status
	}
	if d.set.Has(FieldAnswer) {
		s.Answer = v.Answer
	}
	if d.set.Has(FieldError) {
		s.Error = v.Error
	}
	s.ReasoningChain = append(s.ReasoningChain, d.chain...)
	return s
}
