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
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AcademicAgent/services/ingestion"
)

// Ingest runs one targeted ingestion.
//
// # Description
//
// POST /v1/ingest with an ingestion.Target body. Blocks until indexing
// finishes. A successful run returns 200 with the indexer's result; an
// indexer that answered with an error status returns 502 with that result.
func (h *Handlers) Ingest(c *gin.Context) {
	var target ingestion.Target
	if err := c.ShouldBindJSON(&target); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.Pipeline.RunTargeted(c.Request.Context(), target)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !res.OK() {
		c.JSON(http.StatusBadGateway, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Sweep runs one full sweep.
//
// # Description
//
// POST /v1/ingest/sweep with an optional ingestion.SweepOptions body and an
// optional ?async=true. Synchronous sweeps return the report. Async sweeps
// return 202 immediately and log the report; overlapping requests share one
// run either way.
func (h *Handlers) Sweep(c *gin.Context) {
	var opts ingestion.SweepOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return
	}
	if force, err := strconv.ParseBool(c.DefaultQuery("force", "false")); err == nil && force {
		opts.Force = true
	}

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		ctx := context.WithoutCancel(c.Request.Context())
		go func() {
			report, err := h.Pipeline.Sweep(ctx, opts)
			if err != nil {
				h.logger().Warn("async sweep failed", slog.String("error", err.Error()))
				return
			}
			h.logger().Info("async sweep finished",
				slog.Int("pending", report.Pending),
				slog.Int("archived", len(report.Archived)),
				slog.Int("failed", len(report.Failed)))
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "force": opts.Force})
		return
	}

	report, err := h.Pipeline.Sweep(c.Request.Context(), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
