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

	"github.com/AleutianAI/AcademicAgent/services/ingestion"
)

// AssetsResponse lists archived outlines and assets still waiting for one.
// Unreadable holds pending assets whose raw artifact could not be read.
type AssetsResponse struct {
	Outlines   []ingestion.OutlineRef  `json:"outlines"`
	Pending    []string                `json:"pending"`
	Unreadable []ingestion.ItemFailure `json:"unreadable,omitempty"`
}

// ListAssets handles GET /v1/assets.
func (h *Handlers) ListAssets(c *gin.Context) {
	scanner := h.Pipeline.Scanner()
	refs, err := scanner.Outlines()
	if err != nil {
		h.respondError(c, err)
		return
	}
	tasks, unreadable, err := scanner.Pending(false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := AssetsResponse{Outlines: refs, Pending: make([]string, 0, len(tasks)), Unreadable: unreadable}
	if resp.Outlines == nil {
		resp.Outlines = []ingestion.OutlineRef{}
	}
	for _, t := range tasks {
		resp.Pending = append(resp.Pending, t.AssetID)
	}
	c.JSON(http.StatusOK, resp)
}

// GetOutline handles GET /v1/assets/:id/outline.
func (h *Handlers) GetOutline(c *gin.Context) {
	outline, err := h.Pipeline.Scanner().LoadOutline(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outline)
}
