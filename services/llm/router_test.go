// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

// recordingClient captures the last call made through the router.
type recordingClient struct {
	lastModel string
	reply     string
}

func (c *recordingClient) Chat(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams) (string, error) {
	c.lastModel = model
	return c.reply, nil
}

func (c *recordingClient) ChatStream(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {
	c.lastModel = model
	return callback(StreamEvent{Type: StreamEventToken, Content: c.reply})
}

func TestProviderForModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o", ProviderOpenAI},
		{"gpt-4o-mini", ProviderOpenAI},
		{"o3-mini", ProviderOpenAI},
		{"deepseek-chat", ProviderDeepSeek},
		{"deepseek-reasoner", ProviderDeepSeek},
		{"gemini-2.0-flash", ProviderGemini},
		{"models/gemini-2.0-flash", ProviderGemini},
		{"some-unknown-model", ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ProviderForModel(tt.model))
		})
	}
}

func TestProviderRouterDispatch(t *testing.T) {
	t.Parallel()

	openaiClient := &recordingClient{reply: "from openai"}
	geminiClient := &recordingClient{reply: "from gemini"}

	router := NewProviderRouter()
	router.Register(ProviderOpenAI, openaiClient)
	router.Register(ProviderGemini, geminiClient)

	msgs := []datatypes.Message{{Role: datatypes.RoleUser, Content: "hola"}}

	text, err := router.Chat(context.Background(), "gpt-4o-mini", msgs, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "from openai", text)
	assert.Equal(t, "gpt-4o-mini", openaiClient.lastModel)

	text, err = router.Chat(context.Background(), "gemini-2.0-flash", msgs, GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", text)
}

func TestProviderRouterUnconfiguredProvider(t *testing.T) {
	t.Parallel()

	router := NewProviderRouter()
	router.Register(ProviderOpenAI, &recordingClient{})

	_, err := router.Chat(context.Background(), "deepseek-chat", nil, GenerationParams{})
	require.Error(t, err)
	assert.True(t, IsNotConfiguredError(err))

	err = router.ChatStream(context.Background(), "gemini-2.0-flash", nil, GenerationParams{},
		func(StreamEvent) error { return nil })
	require.Error(t, err)
	assert.True(t, IsNotConfiguredError(err))
}
