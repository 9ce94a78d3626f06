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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AcademicAgent/pkg/ux"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
)

// buildTarget turns flags and the optional positional id into a target.
// The positional id fills whichever of --video-id / --pdf-id the type needs.
func buildTarget(args []string) ingestion.Target {
	t := ingestion.Target{
		AssetType:  ingestion.AssetType(ingestType),
		VideoID:    ingestVideo,
		PDFID:      ingestPDF,
		VideoPath:  ingestPath,
		ForceReset: forceReset,
	}
	if len(args) == 1 {
		t.AssetID = args[0]
		switch t.AssetType {
		case ingestion.AssetVideo:
			if t.VideoID == "" {
				t.VideoID = args[0]
			}
		case ingestion.AssetPDF:
			if t.PDFID == "" {
				t.PDFID = args[0]
			}
		}
	}
	return t
}

func runIngest(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL)

	target := buildTarget(args)
	var raw []byte
	err := ux.Run(cmd.ErrOrStderr(), fmt.Sprintf("Ingesting %s %s", target.AssetType, strings.Join(args, " ")), func() (err error) {
		raw, err = client.do(cmd.Context(), http.MethodPost, "/v1/ingest", target, nil)
		return err
	})
	var apiErr *APIError
	// 502 carries the failing worker result; print it before failing.
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadGateway && apiErr.Body.Code == "" {
		var res dispatch.Result
		if json.Unmarshal(raw, &res) == nil && res.Status != "" {
			renderResult(cmd, raw, res)
			return fmt.Errorf("indexing failed: %s", res.Message)
		}
	}
	if err != nil {
		return err
	}

	var res dispatch.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	renderResult(cmd, raw, res)
	return nil
}

func renderResult(cmd *cobra.Command, raw []byte, res dispatch.Result) {
	out := cmd.OutOrStdout()
	if useJSON(out) {
		_ = writeJSON(out, raw)
		return
	}
	printResult(out, res)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	client := newAPIClient(serverURL)

	q := url.Values{}
	if sweepForce {
		q.Set("force", "true")
	}
	if sweepAsync {
		q.Set("async", "true")
	}
	path := "/v1/ingest/sweep"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	raw, err := client.do(cmd.Context(), http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	if sweepAsync {
		fmt.Fprintln(out, "Sweep accepted; it runs in the background.")
		return nil
	}
	var report ingestion.SweepReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printSweep(out, report)
	return nil
}
