// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
)

// HandleModelsList reports the active model registry.
//
// # Description
//
// Handles GET /v1/models. Returns the registry snapshot the resolver is
// currently routing with, keyed by use case. A registry read failure is
// reported as such rather than masked with the heuristic fallback, because
// this endpoint exists to show operators what the registry row says.
func HandleModelsList(registry routing.Registry, agentID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := registry.Fetch(c.Request.Context(), agentID)
		if err != nil {
			slog.Error("model registry fetch failed", "agent", agentID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "model registry unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"agent":  agentID,
			"models": cfg,
		})
	}
}

// HandleModelsRefresh drops the cached registry snapshot.
//
// # Description
//
// Handles POST /v1/models/refresh. Admin-only. The next resolution re-reads
// model_config, so operators edit the row and call this instead of waiting
// out the cache TTL.
func HandleModelsRefresh(registry *routing.SupabaseRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.Invalidate()
		slog.Info("model registry cache invalidated")
		c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
	}
}
