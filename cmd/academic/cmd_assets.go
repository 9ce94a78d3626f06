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
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
)

func runAssets(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	raw, err := newAPIClient(serverURL).do(cmd.Context(), http.MethodGet, "/v1/assets", nil, nil)
	if err != nil {
		return err
	}
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	var a handlers.AssetsResponse
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printAssets(out, a)
	return nil
}

func runOutline(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := "/v1/assets/" + url.PathEscape(args[0]) + "/outline"
	raw, err := newAPIClient(serverURL).do(cmd.Context(), http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	var o ingestion.Outline
	if err := json.Unmarshal(raw, &o); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printOutline(out, o)
	return nil
}
