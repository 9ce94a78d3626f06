// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP authentication middleware for the
// orchestrator.
//
// # Request Flow
//
//	HTTP Request
//	   │
//	   ▼
//	BearerAuth Middleware
//	   │
//	   ├─► Extract Bearer token from Authorization header
//	   │
//	   ├─► Constant-time compare against the sealed token
//	   │
//	   └─► 401 on mismatch, otherwise continue
//
// # Local Behavior
//
// With no token configured every request passes. This keeps the CLI and a
// single-user laptop setup working without any credentials.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
)

// BearerAuth creates a Gin middleware that requires the configured token.
//
// # Description
//
// The token is moved into a memguard enclave at construction and only
// decrypted for the duration of one comparison.
//
// # Inputs
//
//   - token: The expected bearer token. Empty disables authentication.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use with a route group.
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.BearerAuth(cfg.Server.APIToken))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func BearerAuth(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}
	enclave := memguard.NewEnclave([]byte(token))

	return func(c *gin.Context) {
		presented := extractBearerToken(c)
		if presented == "" || !matches(enclave, presented) {
			c.Header("WWW-Authenticate", `Bearer realm="academic"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func matches(enclave *memguard.Enclave, presented string) bool {
	buf, err := enclave.Open()
	if err != nil {
		return false
	}
	defer buf.Destroy()
	return subtle.ConstantTimeCompare(buf.Bytes(), []byte(presented)) == 1
}

// extractBearerToken returns the token from "Authorization: Bearer <token>",
// or "" when the header is missing or uses another scheme. The scheme is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
