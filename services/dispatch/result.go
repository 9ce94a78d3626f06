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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Sentinel lines the vision worker uses to bracket its result.
const (
	ResultStartMarker = "--- RESULT_START ---"
	ResultEndMarker   = "--- RESULT_END ---"
)

// Status is a worker result status.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// MessageNoResult is the message of a result synthesized when the worker
// printed nothing parseable.
const MessageNoResult = "no result"

// Result is the structured answer of one worker invocation.
type Result struct {
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Details string          `json:"details,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OK reports whether the worker succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err returns nil for a successful result and a *WorkerError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &WorkerError{Message: r.Message, Details: r.Details}
}

// Decode unmarshals the raw payload into v.
func (r Result) Decode(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("decode result: empty payload")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// ParseOutput extracts the result from a worker's stdout.
//
// # Description
//
// When stdout contains the sentinel pair, the bracketed block is the result.
// Otherwise blank lines are dropped and only the final line is parsed;
// earlier lines are log noise. The final line must be a JSON object with a
// status field, or a JSON array, which is taken as a success payload.
// Anything else yields a {status: error, message: "no result"} Result.
//
// # Inputs
//
//   - stdout: the full standard output of a worker that exited 0.
//
// # Outputs
//
//   - Result: never panics, never returns a Go error.
func ParseOutput(stdout []byte) Result {
	if block, ok := bracketed(stdout); ok {
		return parseLine(block)
	}

	lines := strings.Split(strings.ReplaceAll(string(stdout), "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return parseLine([]byte(line))
	}
	return Result{Status: StatusError, Message: MessageNoResult}
}

// bracketed returns the text between the last start/end sentinel pair.
func bracketed(stdout []byte) ([]byte, bool) {
	start := bytes.LastIndex(stdout, []byte(ResultStartMarker))
	if start < 0 {
		return nil, false
	}
	rest := stdout[start+len(ResultStartMarker):]
	end := bytes.Index(rest, []byte(ResultEndMarker))
	if end < 0 {
		return nil, false
	}
	return bytes.TrimSpace(rest[:end]), true
}

func parseLine(line []byte) Result {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !json.Valid(line) {
		return Result{Status: StatusError, Message: MessageNoResult}
	}

	switch line[0] {
	case '[':
		return Result{Status: StatusSuccess, Payload: json.RawMessage(line)}
	case '{':
	default:
		return Result{Status: StatusError, Message: MessageNoResult}
	}

	var head struct {
		Status  string          `json:"status"`
		Message json.RawMessage `json:"message"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Result{Status: StatusError, Message: MessageNoResult}
	}

	res := Result{
		Message: textOf(head.Message),
		Details: textOf(head.Details),
		Payload: json.RawMessage(line),
	}
	switch Status(strings.ToLower(head.Status)) {
	case StatusSuccess:
		res.Status = StatusSuccess
	case StatusError:
		res.Status = StatusError
	case "":
		res.Status = StatusError
		res.Message = "result has no status field"
	default:
		res.Status = StatusError
		res.Message = fmt.Sprintf("unknown result status %q", head.Status)
	}
	return res
}

// textOf renders a JSON value as text: strings unquoted, anything else raw.
func textOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
