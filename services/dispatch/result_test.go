// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput_LastLineWins(t *testing.T) {
	res := ParseOutput([]byte("log1\nlog2\n{\"status\":\"success\",\"value\":1}\n"))

	require.True(t, res.OK())
	var body struct {
		Status string `json:"status"`
		Value  int    `json:"value"`
	}
	require.NoError(t, res.Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 1, body.Value)
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name        string
		stdout      string
		wantStatus  Status
		wantMessage string
		wantDetails string
	}{
		{
			name:        "empty output",
			stdout:      "",
			wantStatus:  StatusError,
			wantMessage: MessageNoResult,
		},
		{
			name:        "only blank lines",
			stdout:      "\n   \n\t\n",
			wantStatus:  StatusError,
			wantMessage: MessageNoResult,
		},
		{
			name:        "trailing log line is not JSON",
			stdout:      "{\"status\":\"success\"}\ndone.\n",
			wantStatus:  StatusError,
			wantMessage: MessageNoResult,
		},
		{
			name:       "blank lines after result are ignored",
			stdout:     "loading model\n{\"status\":\"success\"}\n\n\n",
			wantStatus: StatusSuccess,
		},
		{
			name:       "windows line endings",
			stdout:     "log\r\n{\"status\":\"success\"}\r\n",
			wantStatus: StatusSuccess,
		},
		{
			name:        "worker reported error",
			stdout:      "{\"status\":\"error\",\"message\":\"cuda oom\",\"details\":\"trace\"}",
			wantStatus:  StatusError,
			wantMessage: "cuda oom",
			wantDetails: "trace",
		},
		{
			name:        "missing status",
			stdout:      "{\"value\":3}",
			wantStatus:  StatusError,
			wantMessage: "result has no status field",
		},
		{
			name:        "unknown status",
			stdout:      "{\"status\":\"pending\"}",
			wantStatus:  StatusError,
			wantMessage: `unknown result status "pending"`,
		},
		{
			name:       "bare array from search worker",
			stdout:     "searching\n[{\"score\":0.9,\"content\":\"x\"}]\n",
			wantStatus: StatusSuccess,
		},
		{
			name:        "scalar JSON is not a result",
			stdout:      "42\n",
			wantStatus:  StatusError,
			wantMessage: MessageNoResult,
		},
		{
			name:        "structured details kept raw",
			stdout:      "{\"status\":\"error\",\"message\":\"bad\",\"details\":{\"line\":3}}",
			wantStatus:  StatusError,
			wantMessage: "bad",
			wantDetails: `{"line":3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseOutput([]byte(tt.stdout))
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, res.Message)
			}
			assert.Equal(t, tt.wantDetails, res.Details)
		})
	}
}

func TestParseOutput_SentinelBlock(t *testing.T) {
	stdout := "Loading Qwen2-VL...\n" +
		ResultStartMarker + "\n" +
		"{\"status\": \"success\",\n \"response\": \"The slide shows E = mc^2\"}\n" +
		ResultEndMarker + "\n" +
		"cleanup complete\n"

	res := ParseOutput([]byte(stdout))
	require.True(t, res.OK(), res.Message)

	var body struct {
		Response string `json:"response"`
	}
	require.NoError(t, res.Decode(&body))
	assert.Equal(t, "The slide shows E = mc^2", body.Response)
}

func TestParseOutput_UnterminatedSentinelFallsBackToLastLine(t *testing.T) {
	stdout := ResultStartMarker + "\n{\"status\":\"success\"}\n"
	res := ParseOutput([]byte(stdout))
	assert.True(t, res.OK())
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Result{Status: StatusSuccess}.Err())

	err := Result{Status: StatusError, Message: "exit 1", Details: "stderr"}.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkerFailure))

	var we *WorkerError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "stderr", we.Details)
}

func TestResult_DecodeEmpty(t *testing.T) {
	var v map[string]any
	assert.Error(t, Result{Status: StatusSuccess}.Decode(&v))
}
