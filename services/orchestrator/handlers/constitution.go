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

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/constitution"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

// HandleConstitutionUpsert replaces an agent's behavioral charter.
//
// Handles POST /v1/admin/constitution. Admin-only; the routes layer guards
// it with the admin-key middleware. Returns the stored agent name so CLI
// callers can confirm which identity they just rewrote.
func HandleConstitutionUpsert(store constitution.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ConstitutionUpsertRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse constitution upsert", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Error("constitution upsert validation failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
			return
		}
		req.EnsureDefaults()

		err := store.Upsert(c.Request.Context(), &datatypes.Constitution{
			AgentName: req.AgentName,
			Text:      req.Text,
			Metadata:  req.Metadata,
		})
		if err != nil {
			slog.Error("failed to persist constitution", "agent", req.AgentName, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to persist constitution"})
			return
		}

		slog.Info("constitution updated", "agent", req.AgentName)
		c.JSON(http.StatusOK, gin.H{"status": "updated", "agent": req.AgentName})
	}
}

// HandleConstitutionGet returns the latest charter for an agent.
//
// Handles GET /v1/admin/constitution/:agent.
func HandleConstitutionGet(store constitution.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent := c.Param("agent")
		if agent == "" {
			agent = datatypes.DefaultAgentName
		}

		charter, err := store.Latest(c.Request.Context(), agent)
		if err != nil {
			slog.Warn("constitution lookup failed", "agent", agent, "error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": "no constitution for agent"})
			return
		}
		c.JSON(http.StatusOK, charter)
	}
}
