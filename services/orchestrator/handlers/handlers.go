// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the orchestrator's HTTP handlers.
//
// Every handler maps domain errors to status codes through respondError:
//
//	gate.ErrAdmissionDenied                      409 Conflict
//	missing asset, unsupported type, bad request 400 Bad Request
//	unknown thread or outline                    404 Not Found
//	worker failure, LLM or search failure        502 Bad Gateway
//	anything else                                500 Internal Server Error
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AcademicAgent/services/checkpoint"
	"github.com/AleutianAI/AcademicAgent/services/dispatch"
	"github.com/AleutianAI/AcademicAgent/services/evidence"
	"github.com/AleutianAI/AcademicAgent/services/gate"
	"github.com/AleutianAI/AcademicAgent/services/ingestion"
	"github.com/AleutianAI/AcademicAgent/services/llm"
	"github.com/AleutianAI/AcademicAgent/services/reasoning"
)

// Handlers holds the collaborators shared by every route.
//
// Thread Safety: safe for concurrent use; all fields are read-only after
// construction.
type Handlers struct {
	Gate     *gate.Gate
	Pipeline *ingestion.Pipeline
	Workflow *reasoning.Workflow
	Hub      *Hub
	Logger   *slog.Logger
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// Holder is set on 409 replies.
	Holder *gate.Occupancy `json:"holder,omitempty"`

	// Result is the failing worker result, when one exists.
	Result *dispatch.Result `json:"result,omitempty"`
}

// classify maps err to an HTTP status and a stable machine code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, gate.ErrAdmissionDenied):
		return http.StatusConflict, "admission_denied"
	case errors.Is(err, reasoning.ErrThreadBusy):
		return http.StatusConflict, "thread_busy"
	case errors.Is(err, ingestion.ErrMissingAsset),
		errors.Is(err, ingestion.ErrUnsupportedAsset),
		errors.Is(err, reasoning.ErrInvalidRequest),
		errors.Is(err, checkpoint.ErrInvalidThreadID):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, checkpoint.ErrNotFound):
		return http.StatusNotFound, "thread_not_found"
	case errors.Is(err, ingestion.ErrOutlineNotFound):
		return http.StatusNotFound, "outline_not_found"
	case errors.Is(err, dispatch.ErrWorkerFailure):
		return http.StatusBadGateway, "worker_failure"
	case errors.Is(err, llm.ErrExternalService), errors.Is(err, evidence.ErrSearch):
		return http.StatusBadGateway, "external_service"
	case errors.Is(err, dispatch.ErrConfig):
		return http.StatusInternalServerError, "config_error"
	case errors.Is(err, reasoning.ErrStepLimit):
		return http.StatusInternalServerError, "step_limit"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	body := ErrorResponse{Error: err.Error(), Code: code}

	var denied *gate.DeniedError
	if errors.As(err, &denied) {
		holder := denied.Holder
		body.Holder = &holder
	}
	var stepErr *ingestion.StepError
	if errors.As(err, &stepErr) {
		res := stepErr.Result
		body.Result = &res
	}

	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HealthCheck reports liveness. It does not consult the gate: a busy
// accelerator is healthy.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
