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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AcademicAgent/services/gate"
)

// StatusResponse reports gate occupancy.
type StatusResponse struct {
	gate.Occupancy
	Admissible bool `json:"admissible"`
}

// TripRequest is the body of POST /v1/system/trip.
type TripRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Status handles GET /v1/system/status.
func (h *Handlers) Status(c *gin.Context) {
	snap := h.Gate.Snapshot()
	c.JSON(http.StatusOK, StatusResponse{Occupancy: snap, Admissible: snap.Status == gate.StatusIdle})
}

// Release handles POST /v1/system/release. It clears a tripped gate or a
// stuck holder unconditionally.
func (h *Handlers) Release(c *gin.Context) {
	prev := h.Gate.Snapshot()
	h.Gate.Release()
	h.logger().Warn("gate released by operator",
		slog.String("previous", string(prev.Status)),
		slog.String("task_id", prev.TaskID))
	h.Status(c)
}

// Trip handles POST /v1/system/trip. Neither track is admitted until an
// operator calls release.
func (h *Handlers) Trip(c *gin.Context) {
	var req TripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.Gate.Trip(req.Reason)
	h.Status(c)
}
