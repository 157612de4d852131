// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the HTTP handlers for the assistant endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/services"
)

var askHandlerTracer = otel.Tracer("preventiflow.aria.handlers")

// HandleAskStandard processes blocking chat requests.
//
// # Description
//
// Handles POST /v1/ask/standard. The full turn runs inside the request:
// constitution load, summary load, retrieval, model resolution, generation,
// and the post-answer bookkeeping. The answer is returned as one JSON body.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: AskResponse body
//   - 400 Bad Request: Invalid request body or validation failure
//   - 500 Internal Server Error: Missing deployment configuration
//   - 502 Bad Gateway: Retrieval or provider failure
//   - 504 Gateway Timeout: Generation exceeded its deadline
func HandleAskStandard(ask *services.AskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointAskStandard
		ctx, span := askHandlerTracer.Start(c.Request.Context(), "HandleAskStandard")
		defer span.End()

		req, ok := bindAskRequest(c, endpoint)
		if !ok {
			span.SetStatus(codes.Error, "validation failed")
			return
		}
		span.SetAttributes(attribute.String("ask.use_case", req.UseCase))

		resp, err := ask.Standard(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "turn failed")
			respondServiceError(c, endpoint, err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, false)
			}
			return
		}

		span.SetAttributes(attribute.String("ask.model", resp.Model))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, true)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// bindAskRequest parses and validates the ask body, writing the 400 response
// itself on failure.
func bindAskRequest(c *gin.Context, endpoint observability.Endpoint) (*datatypes.AskRequest, bool) {
	var req datatypes.AskRequest
	if err := c.BindJSON(&req); err != nil {
		slog.Error("failed to parse ask request", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	if err := req.Validate(); err != nil {
		slog.Error("ask request validation failed", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return nil, false
	}
	return &req, true
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Internal detail stays in the logs; the client sees a category.
func respondServiceError(c *gin.Context, endpoint observability.Endpoint, err error) {
	switch {
	case services.IsConfigError(err):
		slog.Error("deployment configuration error", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeConfig)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "service misconfigured"})
	case services.IsTimeoutError(err):
		slog.Error("generation timed out", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeTimeout)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "generation timed out"})
	case services.IsUpstreamError(err):
		slog.Error("upstream dependency failed", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeLLMError)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream service unavailable"})
	default:
		slog.Error("ask turn failed", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func recordHandlerError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}
