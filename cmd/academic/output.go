// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AcademicAgent/pkg/ux"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// useJSON reports whether w gets raw JSON: always with --json, and whenever
// stdout is redirected to a file or pipe.
func useJSON(w io.Writer) bool {
	if jsonOutput {
		return true
	}
	if _, ok := w.(*os.File); !ok {
		return false
	}
	return !ux.IsTerminal(w)
}

// writeJSON re-indents a raw response body.
func writeJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func printResult(w io.Writer, res dispatch.Result) {
	fmt.Fprintf(w, "%s %s", ux.Mark(res.OK()), res.Status)
	if res.Message != "" {
		fmt.Fprintf(w, ": %s", res.Message)
	}
	fmt.Fprintln(w)
	if res.Details != "" {
		fmt.Fprintf(w, "  %s\n", res.Details)
	}
}

func printSweep(w io.Writer, r ingestion.SweepReport) {
	fmt.Fprintf(w, "Sweep finished in %s\n", r.Duration.Round(time.Millisecond))
	for _, s := range r.Batch {
		fmt.Fprintf(w, "  batch %-10s %s %s\n", s.Step, s.Status, s.Message)
	}
	fmt.Fprintf(w, "Pending: %d  Archived: %d  Failed: %d\n", r.Pending, len(r.Archived), len(r.Failed))
	for _, id := range r.Archived {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  ! %s (%s): %s\n", f.AssetID, f.AssetType, f.Error)
	}
}

func printAnswer(w io.Writer, a handlers.AskResponse) {
	if a.Status == reasoning.StatusError {
		fmt.Fprintf(w, "%s %s\n", ux.Styles.Error.Render("Run ended with an error:"), a.Error)
	} else {
		fmt.Fprintln(w, a.Answer)
	}
	if len(a.Citations) > 0 {
		fmt.Fprintln(w, "\n"+ux.Styles.Title.Render("Sources:"))
		for _, c := range a.Citations {
			fmt.Fprintf(w, "  %s\n", ux.Styles.Citation.Render(c.AssetID+" "+citationAnchor(c)))
		}
	}
	fmt.Fprintln(w, ux.Styles.Muted.Render(fmt.Sprintf("\nthread %s  status %s  retries %d", a.ThreadID, a.Status, a.RetryCount)))
}

func citationAnchor(c reasoning.Citation) string {
	switch {
	case c.Label != "":
		return "@" + c.Label
	case c.PageNumber != nil:
		return fmt.Sprintf("p.%d", *c.PageNumber)
	default:
		return ""
	}
}

func printEvent(w io.Writer, e reasoning.Event) {
	fmt.Fprintf(w, "[%d] %s -> %s", e.Step, e.Node, e.Next)
	if len(e.Entries) > 0 {
		fmt.Fprintf(w, "  %s", strings.Join(e.Entries, "; "))
	}
	fmt.Fprintln(w)
}

func printThread(w io.Writer, t reasoning.Thread) {
	fmt.Fprintf(w, "Thread %s: %s (next %s)\n", t.State.ThreadID, t.State.Status, t.Next)
	fmt.Fprintf(w, "Question: %s\n", t.State.Query)
	for _, h := range t.History {
		fmt.Fprintf(w, "  step %-3d %-10s -> %-10s %s\n", h.Step, h.Node, h.Next, h.Status)
	}
	if len(t.State.ReasoningChain) > 0 {
		fmt.Fprintln(w, "Reasoning:")
		for _, entry := range t.State.ReasoningChain {
			fmt.Fprintf(w, "  - %s\n", entry)
		}
	}
}

func printAssets(w io.Writer, a handlers.AssetsResponse) {
	fmt.Fprintf(w, "Outlines (%d):\n", len(a.Outlines))
	for _, o := range a.Outlines {
		fmt.Fprintf(w, "  %-24s %s\n", o.AssetID, o.AssetType)
	}
	fmt.Fprintf(w, "Pending (%d):\n", len(a.Pending))
	for _, id := range a.Pending {
		fmt.Fprintf(w, "  %s\n", id)
	}
	if len(a.Unreadable) > 0 {
		fmt.Fprintf(w, "Unreadable (%d):\n", len(a.Unreadable))
		for _, f := range a.Unreadable {
			fmt.Fprintf(w, "  %-24s %s\n", f.AssetID, ux.Styles.Error.Render(f.Error))
		}
	}
}

func printOutline(w io.Writer, o ingestion.Outline) {
	fmt.Fprintf(w, "%s (%s, %s)\n", ux.Styles.Title.Render(o.Title), o.AssetID, o.AssetType)
	for _, s := range o.Outline {
		fmt.Fprintf(w, "\n%s %s\n", ux.Styles.Muted.Render(s.Anchor), ux.Styles.Bold.Render(s.Heading))
		if s.Summary != "" {
			fmt.Fprintf(w, "  %s\n", s.Summary)
		}
		for _, p := range s.SubPoints {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}

func printStatus(w io.Writer, s handlers.StatusResponse) {
	fmt.Fprintf(w, "Gate: %s", ux.Styles.Bold.Render(string(s.Status)))
	if s.TaskID != "" {
		fmt.Fprintf(w, " (task %s since %s)", s.TaskID, s.Since.Format("15:04:05"))
	}
	if s.Reason != "" {
		fmt.Fprintf(w, " reason: %s", s.Reason)
	}
	fmt.Fprintf(w, "\nAdmissible: %t\n", s.Admissible)
}
