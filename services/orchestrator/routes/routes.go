// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/constitution"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/handlers"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/middleware"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/services"
)

// Deps carries the wired components the route table binds to handlers.
type Deps struct {
	Ask           *services.AskService
	Legal         *services.LegalService
	LLM           llm.LLMClient
	Constitutions constitution.Store
	Registry      *routing.SupabaseRegistry
	AgentID       string
	RateLimits    *middleware.RateLimiterStore
}

// SetupRoutes registers every endpoint on the router.
//
// The chat endpoints sit behind the per-client rate limiter because each
// request fans out to paid provider APIs. The admin group sits behind the
// operator key.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	streaming := handlers.NewStreamingAskHandler(deps.Ask, deps.LLM)

	v1 := router.Group("/v1")
	{
		ask := v1.Group("/ask", middleware.RateLimitMiddleware(deps.RateLimits))
		{
			ask.POST("/standard", handlers.HandleAskStandard(deps.Ask))
			ask.POST("/stream", streaming.HandleAskStream)
		}

		v1.POST("/legal/standard", middleware.RateLimitMiddleware(deps.RateLimits),
			handlers.HandleLegalStandard(deps.Legal))

		v1.GET("/models", handlers.HandleModelsList(deps.Registry, deps.AgentID))
		v1.POST("/models/refresh", middleware.AdminKeyMiddleware(),
			handlers.HandleModelsRefresh(deps.Registry))

		admin := v1.Group("/admin", middleware.AdminKeyMiddleware())
		{
			admin.POST("/constitution", handlers.HandleConstitutionUpsert(deps.Constitutions))
			admin.GET("/constitution/:agent", handlers.HandleConstitutionGet(deps.Constitutions))
		}
	}
}
