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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/services"
)

// HandleLegalStandard processes verified legal-answer requests.
//
// # Description
//
// Handles POST /v1/legal/standard. Runs keyword retrieval over the legal
// corpus, drafts a citation-bound answer, and passes it through the
// consistency verifier. The response reports whether the answer was grounded
// in internal fragments (transparency) and whether verification ran
// (verified).
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: LegalResponse body
//   - 400 Bad Request: Invalid request body or validation failure
//   - 500 Internal Server Error: Missing deployment configuration
//   - 502 Bad Gateway: Retrieval or provider failure
//   - 504 Gateway Timeout: Draft generation exceeded its deadline
func HandleLegalStandard(legal *services.LegalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointLegalStandard
		ctx, span := askHandlerTracer.Start(c.Request.Context(), "HandleLegalStandard")
		defer span.End()

		var req datatypes.LegalRequest
		if err := c.BindJSON(&req); err != nil {
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("failed to parse legal request", "error", err)
			recordHandlerError(endpoint, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.SetStatus(codes.Error, "validation failed")
			slog.Error("legal request validation failed", "error", err)
			recordHandlerError(endpoint, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
			return
		}

		resp, err := legal.Answer(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "legal answer failed")
			respondServiceError(c, endpoint, err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, false)
			}
			return
		}

		span.SetAttributes(
			attribute.Bool("legal.verified", resp.Verified),
			attribute.String("legal.transparency", resp.Transparency),
			attribute.Int("legal.fragments", len(resp.UsedContext)),
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, true)
		}
		c.JSON(http.StatusOK, resp)
	}
}
