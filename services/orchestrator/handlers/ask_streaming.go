// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/services"
)

// heartbeatInterval is the interval for sending keepalive pings. 15s stays
// well under typical LB idle timeouts (60s for ALB/Nginx).
const heartbeatInterval = 15 * time.Second

// =============================================================================
// Struct Definition
// =============================================================================

// StreamingAskHandler serves the SSE chat endpoint.
//
// # Description
//
// Coordinates between the HTTP layer and the turn pipeline. The handler owns
// everything transport-level: SSE setup, the started/chunk/done/error event
// sequence, keepalive heartbeats, and stream metrics. Turn assembly and the
// post-answer bookkeeping are delegated to the AskService, so the blocking
// and streaming endpoints share one pipeline.
//
// # Thread Safety
//
// Thread-safe. All fields are read-only after construction.
type StreamingAskHandler struct {
	ask    *services.AskService
	llm    llm.LLMClient
	tracer trace.Tracer
}

// NewStreamingAskHandler creates the handler. Panics on nil dependencies
// (programming errors).
func NewStreamingAskHandler(ask *services.AskService, llmClient llm.LLMClient) *StreamingAskHandler {
	if ask == nil {
		panic("NewStreamingAskHandler: ask service must not be nil")
	}
	if llmClient == nil {
		panic("NewStreamingAskHandler: llm client must not be nil")
	}
	return &StreamingAskHandler{
		ask:    ask,
		llm:    llmClient,
		tracer: otel.Tracer("preventiflow.aria.handlers.ask_streaming"),
	}
}

// =============================================================================
// Handler Methods
// =============================================================================

// HandleAskStream processes chat requests with SSE streaming.
//
// # Description
//
// Handles POST /v1/ask/stream. The flow is:
//  1. Parse and validate the request body
//  2. Prepare the turn (constitution, summary, retrieval, model resolution)
//  3. Set SSE headers, emit the started event
//  4. Stream content deltas as chunk events with a heartbeat goroutine
//  5. Fold the turn into the session summary
//  6. Emit the terminal done event
//
// Failures before the stream opens are plain HTTP errors. Once streaming has
// started, failures become the terminal error event; the client sees exactly
// one of done or error.
//
// # Outputs
//
// SSE Events:
//   - event: started, data: {"status":"started","model":"gpt-4o-mini"}
//   - event: chunk, data: {"chunk":"Según"}
//   - event: done, data: {"done":true}
//   - event: error, data: {"error":"..."}
//
// HTTP Status (before streaming starts):
//   - 400 Bad Request: Invalid request body or validation failure
//   - 500 Internal Server Error: Missing configuration or SSE setup failure
//   - 502 Bad Gateway: Retrieval failure
func (h *StreamingAskHandler) HandleAskStream(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointAskStream

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleAskStream")
	defer span.End()

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			duration := time.Since(startTime).Seconds()
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, duration, success)
		}
	}()

	// Step 1: Parse and validate
	req, ok := bindAskRequest(c, endpoint)
	if !ok {
		span.SetStatus(codes.Error, "validation failed")
		return
	}
	span.SetAttributes(attribute.String("ask.use_case", req.UseCase))

	// Step 2: Prepare the turn. Failures here still map to HTTP statuses
	// because no bytes have been written yet.
	plan, err := h.ask.Prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn preparation failed")
		respondServiceError(c, endpoint, err)
		return
	}
	span.SetAttributes(
		attribute.String("ask.model", plan.Model),
		attribute.Int("ask.sources", len(plan.Sources)),
	)

	// Step 3: Open the stream
	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		slog.Error("failed to create SSE writer", "error", err)
		recordHandlerError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	if err := sseWriter.WriteStarted(plan.Model); err != nil {
		span.RecordError(err)
		slog.Error("failed to write started event", "error", err)
		return
	}

	// Greeting shortcut: canned welcome, no provider call, no summary write.
	if plan.Greeting != "" {
		if err := sseWriter.WriteChunk(plan.Greeting); err == nil {
			_ = sseWriter.WriteDone()
			success = true
			span.SetStatus(codes.Ok, "greeting served")
		}
		return
	}

	// Step 4: Heartbeat goroutine for slow generations
	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, sseWriter, endpoint, heartbeatDone)

	genCtx, cancel := context.WithTimeout(ctx, h.ask.Timeout())
	defer cancel()

	temp := float32(0.2)
	params := llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &plan.MaxTokens,
	}

	var answer strings.Builder
	firstTokenTime := time.Time{}
	streamErr := h.llm.ChatStream(genCtx, plan.Model, plan.Messages, params, func(event llm.StreamEvent) error {
		// Reasoning deltas are provider chatter, not answer content.
		if event.Type != llm.StreamEventToken {
			return nil
		}
		if firstTokenTime.IsZero() {
			firstTokenTime = time.Now()
		}
		answer.WriteString(event.Content)
		return sseWriter.WriteChunk(event.Content)
	})

	close(heartbeatDone)

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "streaming failed")
		slog.Error("streaming generation failed",
			"error", streamErr,
			"session_id", plan.SessionID,
			"model", plan.Model,
		)

		switch {
		case errors.Is(streamErr, context.Canceled):
			// Client is gone; nothing left to write to.
			recordHandlerError(endpoint, observability.ErrorCodeClientDisconnect)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordClientDisconnect(endpoint)
			}
		case errors.Is(streamErr, context.DeadlineExceeded):
			recordHandlerError(endpoint, observability.ErrorCodeTimeout)
			_ = sseWriter.WriteError("generation timed out")
		default:
			recordHandlerError(endpoint, observability.ErrorCodeLLMError)
			_ = sseWriter.WriteError("upstream service unavailable")
		}
		return
	}

	if !firstTokenTime.IsZero() {
		ttft := firstTokenTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(endpoint, ttft)
		}
	}

	// Step 5: Fold the turn into the rolling summary before signalling done,
	// so a client that immediately asks again sees this turn.
	h.ask.FinishTurn(ctx, plan, answer.String())

	// Step 6: Terminal event
	if err := sseWriter.WriteDone(); err != nil {
		span.RecordError(err)
		slog.Error("failed to write done event", "error", err, "session_id", plan.SessionID)
		return
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed")
}

// runHeartbeat sends keepalive pings until the stream finishes. The writer
// rejects pings after the terminal event, which also stops the loop.
func (h *StreamingAskHandler) runHeartbeat(ctx context.Context, w SSEWriter, endpoint observability.Endpoint, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.WriteKeepAlive(); err != nil {
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}
