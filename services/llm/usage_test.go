// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
)

// promauto registers on the default registry, so InitMetrics can run only
// once per test binary.
var usageMetricsOnce sync.Once

func initUsageMetrics() {
	usageMetricsOnce.Do(func() { observability.InitMetrics() })
}

func TestOpenAIChatRecordsTokenUsage(t *testing.T) {
	initUsageMetrics()

	const model = "gpt-4o-usage"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1700000000,"model":"` + model + `",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Según el DS 44..."},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":42,"completion_tokens":17,"total_tokens":59}}`))
	}))
	defer server.Close()

	client := newOpenAICompatClient("openai", "test-key", server.URL)
	_, err := client.Chat(context.Background(), model,
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "DS 44"}}, GenerationParams{})
	require.NoError(t, err)

	assert.Equal(t, float64(42),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("input", model)))
	assert.Equal(t, float64(17),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("output", model)))
}

func TestOpenAIChatStreamRecordsTokenUsage(t *testing.T) {
	initUsageMetrics()

	const model = "gpt-4o-mini-usage"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		fmt.Fprintf(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1700000000,"model":%q,"choices":[{"index":0,"delta":{"content":"Buenos días"},"finish_reason":null}]}`+"\n\n", model)
		// The final frame carries totals and no choices.
		fmt.Fprintf(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1700000000,"model":%q,"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`+"\n\n", model)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	client := newOpenAICompatClient("openai", "test-key", server.URL)
	err := client.ChatStream(context.Background(), model,
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "saluda"}}, GenerationParams{},
		func(event StreamEvent) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, float64(12),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("input", model)))
	assert.Equal(t, float64(4),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("output", model)))
}

func TestGeminiChatRecordsTokenUsage(t *testing.T) {
	initUsageMetrics()

	const model = "gemini-2.0-flash-usage"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hola"}],"role":"model"}}],` +
			`"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":3}}`))
	}))
	defer server.Close()

	client := newTestGeminiClient(server.URL)
	_, err := client.Chat(context.Background(), model,
		[]datatypes.Message{{Role: datatypes.RoleUser, Content: "saluda"}}, GenerationParams{})
	require.NoError(t, err)

	assert.Equal(t, float64(9),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("input", model)))
	assert.Equal(t, float64(3),
		testutil.ToFloat64(observability.DefaultMetrics.TokensTotal.WithLabelValues("output", model)))
}
