// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AcademicAgent/services/orchestrator/handlers"
	"github.com/AleutianAI/AcademicAgent/services/orchestrator/middleware"
)

// SetupRoutes registers every endpoint. /health and /metrics stay open;
// everything under /v1 requires apiToken when it is set.
func SetupRoutes(router *gin.Engine, h *handlers.Handlers, metrics http.Handler, apiToken string) {
	router.GET("/health", handlers.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(apiToken))
	{
		ingest := v1.Group("/ingest")
		{
			ingest.POST("", h.Ingest)
			ingest.POST("/sweep", h.Sweep)
		}

		rsn := v1.Group("/reasoning")
		{
			rsn.POST("/ask", h.Ask)
			rsn.POST("/resume/:thread", h.Resume)
			rsn.GET("/threads/:thread", h.GetThread)
			rsn.DELETE("/threads/:thread", h.DeleteThread)
			rsn.GET("/stream", h.Stream)
		}

		assets := v1.Group("/assets")
		{
			assets.GET("", h.ListAssets)
			assets.GET("/:id/outline", h.GetOutline)
		}

		system := v1.Group("/system")
		{
			system.GET("/status", h.Status)
			system.POST("/release", h.Release)
			system.POST("/trip", h.Trip)
		}
	}
}
