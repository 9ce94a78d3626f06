// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// AskResponse is the reply to ask and resume. Retrieved evidence is left
// out; GET /v1/reasoning/threads/:thread returns the full state.
type AskResponse struct {
	ThreadID       string               `json:"thread_id"`
	Status         reasoning.Status     `json:"status"`
	Answer         string               `json:"answer,omitempty"`
	Citations      []reasoning.Citation `json:"citations"`
	RetryCount     int                  `json:"retry_count"`
	ReasoningChain []string             `json:"reasoning_chain"`
	Error          string               `json:"error,omitempty"`
}

func toAskResponse(s reasoning.State) AskResponse {
	resp := AskResponse{
		ThreadID:       s.ThreadID,
		Status:         s.Status,
		Answer:         s.Answer,
		Citations:      s.Citations,
		RetryCount:     s.RetryCount,
		ReasoningChain: s.ReasoningChain,
		Error:          s.Error,
	}
	if resp.Citations == nil {
		resp.Citations = []reasoning.Citation{}
	}
	if resp.ReasoningChain == nil {
		resp.ReasoningChain = []string{}
	}
	return resp
}

// Ask handles POST /v1/reasoning/ask.
//
// # Description
//
// Runs the workflow to completion for one question. A run that ends with
// status error still returns 200: the failure is part of the answer and is
// described by the reasoning chain. Admission denial returns 409 without
// touching the thread.
func (h *Handlers) Ask(c *gin.Context) {
	var req reasoning.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	state, err := h.Workflow.Ask(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAskResponse(state))
}

// Resume handles POST /v1/reasoning/resume/:thread.
func (h *Handlers) Resume(c *gin.Context) {
	state, err := h.Workflow.Resume(c.Request.Context(), c.Param("thread"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAskResponse(state))
}

// GetThread handles GET /v1/reasoning/threads/:thread.
func (h *Handlers) GetThread(c *gin.Context) {
	thread, err := h.Workflow.Thread(c.Request.Context(), c.Param("thread"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

// DeleteThread handles DELETE /v1/reasoning/threads/:thread.
func (h *Handlers) DeleteThread(c *gin.Context) {
	if err := h.Workflow.Forget(c.Request.Context(), c.Param("thread")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
