// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// This package contains the admin-key guard for the operator endpoints and
// the per-client rate limiter for the chat endpoints.
//
// # Admin Key Flow
//
// The admin middleware compares the x-admin-key request header against the
// ADMIN_API_KEY environment variable:
//
//	Request
//	   │
//	   ▼
//	AdminKeyMiddleware
//	   │
//	   ├─► ADMIN_API_KEY unset  → 500 (deployment error, fail closed)
//	   ├─► header missing/wrong → 401
//	   └─► match                → Handler
//
// An unset key is treated as a deployment error rather than an open door:
// the admin surface never becomes public because an operator forgot a
// variable.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// AdminKeyHeader is the request header carrying the operator credential.
const AdminKeyHeader = "x-admin-key"

// adminKeyEnv names the environment variable holding the expected key.
const adminKeyEnv = "ADMIN_API_KEY"

// AdminKeyMiddleware guards the admin endpoints with a shared operator key.
//
// # Description
//
// Reads the expected key from ADMIN_API_KEY on every request, so a key
// rotation takes effect without a restart. Comparison is constant-time.
//
// # Outputs
//
// HTTP Status on rejection:
//   - 401 Unauthorized: Header missing or key mismatch
//   - 500 Internal Server Error: ADMIN_API_KEY not configured
//
// # Examples
//
//	admin := router.Group("/v1/admin", middleware.AdminKeyMiddleware())
//	admin.POST("/constitution", handlers.HandleConstitutionUpsert(store))
func AdminKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := os.Getenv(adminKeyEnv)
		if expected == "" {
			slog.Error("admin endpoint hit with ADMIN_API_KEY unset")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "admin access not configured",
			})
			return
		}

		provided := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			slog.Warn("admin key rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin key",
			})
			return
		}

		c.Next()
	}
}
