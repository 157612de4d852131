// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides provider adapters behind a single client interface.
// The orchestrator resolves a model name per request; this package maps the
// model to a configured provider (OpenAI, DeepSeek, Gemini) and normalizes
// every provider's response shape to plain text and token events.
package llm

import (
	"context"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
)

// GenerationParams are the provider-agnostic sampling knobs. Nil pointers
// mean "provider default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType identifies what a stream event carries.
type StreamEventType string

const (
	// StreamEventToken is a visible answer token.
	StreamEventToken StreamEventType = "token"
	// StreamEventThinking is reasoning content some providers interleave
	// with the answer. Never forwarded to end users.
	StreamEventThinking StreamEventType = "thinking"
)

// StreamEvent is one unit of streamed output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
}

// StreamCallback is called for each event during streaming. Returning an
// error aborts the stream; the provider adapter stops reading and closes
// the upstream connection.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any model provider.
//
// # Description
//
// Chat runs one blocking completion and returns the full text. ChatStream
// delivers the completion incrementally through the callback and returns
// only when the stream is finished or failed. Both take the concrete model
// name because one provider serves several models.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []datatypes.Message,
		params GenerationParams) (string, error)
	ChatStream(ctx context.Context, model string, messages []datatypes.Message,
		params GenerationParams, callback StreamCallback) error
}

// recordTokenUsage feeds provider-reported token counts into the shared
// metrics. Adapters call it with whatever usage block their wire format
// carries; zero counts are skipped.
func recordTokenUsage(model string, inputTokens, outputTokens int) {
	if inputTokens <= 0 && outputTokens <= 0 {
		return
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordTokens(inputTokens, outputTokens, model)
	}
}

// Float32Ptr returns a pointer to v. Convenience for GenerationParams.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr returns a pointer to v. Convenience for GenerationParams.
func IntPtr(v int) *int { return &v }
