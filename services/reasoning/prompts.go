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
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/AcademicAgent/services/evidence"
)

// =============================================================================
// System prompts
// =============================================================================

const (
	refineSystem = `You are a query refiner for a lecture and paper search index.
Rewrite the user's question into one short keyword-rich search query in the same language.
Reply with the query only, no quotes and no explanation.`

	planSystem = `You are a task planner for a study assistant.
Decide which extra checks the question needs beyond reading the retrieved text.
need_vision: the answer depends on what is shown on screen (board writing, slides, diagrams).
need_sandbox: the answer contains a formula or computation that should be checked symbolically.
vision_strategy: "ocr" for written text or formulas, "diagram" for figures and plots, "scene" otherwise.
Reply with one JSON object.`

	evaluateSystem = `You are an evidence auditor.
Judge whether the retrieved evidence is sufficient and relevant for answering the question.
Use action "refetch" only when a different search would likely find better evidence.
You may override the plan's need_vision and need_sandbox flags.
Reply with one JSON object.`

	logicSystem = `You are an expression extractor.
Find the single central mathematical expression or equation in the material that the answer relies on,
written in SymPy syntax. Leave expression empty when there is nothing to check symbolically.
Reply with one JSON object.`

	synthesizeSystem = `You are an academic writer answering a student's question from course material.
Ground every claim in the numbered evidence and cite it with its label.
If the evidence does not answer the question, say so plainly.`
)

// Vision instructions by manifest strategy.
var visionInstructions = map[string]string{
	"ocr":     "Transcribe every formula, symbol and line of text visible on the board or slide exactly as written.",
	"diagram": "Describe the figure: its components, axes and labels, and the relationships the arrows or curves show.",
	"scene":   "Describe what this lecture frame shows, focusing on content that helps answer the question.",
}

// VisionInstruction returns the instruction for strategy, defaulting to scene.
func VisionInstruction(strategy string) string {
	if s, ok := visionInstructions[strings.ToLower(strings.TrimSpace(strategy))]; ok {
		return s
	}
	return visionInstructions["scene"]
}

// =============================================================================
// User prompt templates
// =============================================================================

var promptFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
	"anchor": func(d evidence.Evidence) string {
		switch {
		case d.Metadata.Timestamp != nil:
			return " " + FormatTimestamp(*d.Metadata.Timestamp)
		case d.Metadata.PageLabel != nil:
			return fmt.Sprintf(" p.%d", *d.Metadata.PageLabel)
		}
		return ""
	},
	"truncate": func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
}

const evidenceBlock = `{{define "evidence"}}{{if .Docs}}Evidence:
{{range $i, $d := .Docs}}[{{inc $i}}] ({{$d.Metadata.Modality}} {{$d.Metadata.AssetID}}{{anchor $d}}) {{truncate $d.Content 600}}
{{end}}{{else}}Evidence: none retrieved.
{{end}}{{end}}`

var prompts = template.Must(template.New("prompts").Funcs(promptFuncs).Parse(evidenceBlock + `
{{define "refine"}}Question: {{.Query}}
{{- if .Critique}}
The previous search was judged insufficient: {{.Critique}}
{{- end}}{{end}}

{{define "plan"}}Question: {{.Query}}

{{template "evidence" .}}
JSON shape: {"need_vision": bool, "need_sandbox": bool, "vision_strategy": "ocr"|"diagram"|"scene", "reason": string}{{end}}

{{define "evaluate"}}Question: {{.Query}}

{{template "evidence" .}}
Current plan: need_vision={{.Manifest.NeedVision}} need_sandbox={{.Manifest.NeedSandbox}}
Previous retries: {{.RetryCount}}

JSON shape: {"action": "proceed"|"refetch", "relevance": number between 0 and 1, "critique": string, "overrides": {"need_vision": bool, "need_sandbox": bool}} (omit an override to keep the plan){{end}}

{{define "logic"}}Question: {{.Query}}

Material:
{{.Material}}

JSON shape: {"expression": string, "mode": "simplify"|"solve"|"evaluate"|"diff"|"integrate", "symbol": string}{{end}}

{{define "synthesize"}}Question: {{.Query}}

{{template "evidence" .}}
{{- if .Citations}}
Citation labels: {{range $i, $c := .Citations}}{{if $i}}, {{end}}{{$c}}{{end}}
{{- end}}
{{- if .VisionFeedback}}
Visual inspection of the key frame: {{.VisionFeedback}}
{{- end}}
{{- if .Verification}}
Symbolic verification: {{.Verification}}
{{- end}}
{{- if .Critique}}
Reviewer notes on the evidence: {{.Critique}}
{{- end}}

Answer in the language of the question.{{end}}
`))

type promptData struct {
	Query          string
	Critique       string
	Docs           []evidence.Evidence
	Manifest       Manifest
	RetryCount     int
	Material       string
	Citations      []Citation
	VisionFeedback string
	Verification   string
}

func render(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
