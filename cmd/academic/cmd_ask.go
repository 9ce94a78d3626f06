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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AcademicAgent/pkg/ux"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// runAsk posts one question. With --stream it subscribes to the thread's
// events first, which needs the thread id up front, so one is generated
// client side when --thread is empty.
func runAsk(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	client := newAPIClient(serverURL)
	req := reasoning.Request{
		Query:    strings.Join(args, " "),
		ThreadID: askThread,
		AssetID:  askAsset,
	}

	if askStream {
		if req.ThreadID == "" {
			req.ThreadID = uuid.NewString()
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		events, closeStream, err := client.stream(ctx, req.ThreadID)
		if err != nil {
			return err
		}
		finished := make(chan struct{})
		go func() {
			defer close(finished)
			for e := range events {
				printEvent(cmd.ErrOrStderr(), e)
				if e.Next == reasoning.NodeEnd {
					return
				}
			}
		}()
		// The answer can arrive before the last event is read off the socket.
		defer func() {
			select {
			case <-finished:
			case <-time.After(2 * time.Second):
			}
			closeStream()
		}()
	}

	var raw []byte
	ask := func() (err error) {
		raw, err = client.do(cmd.Context(), http.MethodPost, "/v1/reasoning/ask", req, nil)
		return err
	}
	var err error
	if askStream {
		err = ask()
	} else {
		err = ux.Run(cmd.ErrOrStderr(), "Thinking", ask)
	}
	if err != nil {
		return err
	}
	return renderAnswer(out, raw)
}

func runResume(cmd *cobra.Command, args []string) error {
	client := newAPIClient(serverURL)
	raw, err := client.do(cmd.Context(), http.MethodPost, "/v1/reasoning/resume/"+url.PathEscape(args[0]), nil, nil)
	if err != nil {
		return err
	}
	return renderAnswer(cmd.OutOrStdout(), raw)
}

func runThread(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	client := newAPIClient(serverURL)
	raw, err := client.do(cmd.Context(), http.MethodGet, "/v1/reasoning/threads/"+url.PathEscape(args[0]), nil, nil)
	if err != nil {
		return err
	}
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	var t reasoning.Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printThread(out, t)
	return nil
}

func renderAnswer(out io.Writer, raw []byte) error {
	if useJSON(out) {
		return writeJSON(out, raw)
	}
	var a handlers.AskResponse
	if err := json.Unmarshal(raw, &a); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	printAnswer(out, a)
	return nil
}
