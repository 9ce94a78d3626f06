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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
)

func runStatus(cmd *cobra.Command, _ []string) error {
	return systemCall(cmd, http.MethodGet, "/v1/system/status", nil)
}

func runRelease(cmd *cobra.Command, _ []string) error {
	return systemCall(cmd, http.MethodPost, "/v1/system/release", nil)
}

func runTrip(cmd *cobra.Command, args []string) error {
	return systemCall(cmd, http.MethodPost, "/v1/system/trip", handlers.TripRequest{Reason: strings.Join(args, " ")})
}

// systemCall sends one gate request and prints the resulting gate state.
func systemCall(cmd *cobra.Command, method, path string, body any) error {
	out := cmd.OutOrStdout()
	raw, err := newAPIClient(serverURL).do(cmd.Context(), method, path, body, nil)
	if err != nil {
		return err
	}
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	var s handlers.StatusResponse
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printStatus(out, s)
	return nil
}
