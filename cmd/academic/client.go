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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// Exit codes.
const (
	exitError  = 1
	exitDenied = 3
)

// APIError is a non-2xx reply from the orchestrator.
type APIError struct {
	StatusCode int
	Body       handlers.ErrorResponse
	Raw        []byte
}

func (e *APIError) Error() string {
	if e.Body.Error != "" {
		msg := fmt.Sprintf("%s (%d %s)", e.Body.Error, e.StatusCode, e.Body.Code)
		if e.Body.Holder != nil {
			msg += fmt.Sprintf(": gate is %s for %q", e.Body.Holder.Status, e.Body.Holder.TaskID)
		}
		return msg
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Raw)))
}

// exitCode maps admission denial to its own exit code so scripts can retry.
func exitCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return exitDenied
	}
	return exitError
}

// apiClient calls the orchestrator's /v1 API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: os.Getenv("ACADEMIC_API_TOKEN"),
		// Ingestion and reasoning runs are long; the server bounds them.
		http: &http.Client{Timeout: 0},
	}
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil). A 502 from ingest still carries a worker result, so raw body
// bytes are returned for callers that print them.
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact orchestrator at %s: %w", c.base, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
		_ = json.Unmarshal(raw, &apiErr.Body)
		return raw, apiErr
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}

// stream subscribes to workflow events of one thread. Events are delivered
// on the returned channel until ctx is done or the server closes the socket.
func (c *apiClient) stream(ctx context.Context, threadID string) (<-chan reasoning.Event, func(), error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/reasoning/stream"
	u.RawQuery = url.Values{"thread": {threadID}}.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, nil, fmt.Errorf("open event stream: %w", err)
	}

	events := make(chan reasoning.Event, 16)
	go func() {
		defer close(events)
		for {
			var e reasoning.Event
			if err := conn.ReadJSON(&e); err != nil {
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, func() { _ = conn.Close() }, nil
}
