// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

// deepSeekBaseURL is the OpenAI-compatible endpoint DeepSeek exposes.
const deepSeekBaseURL = "https://api.deepseek.com/v1"

// OpenAIClient serves every OpenAI-compatible provider. The same adapter
// backs both api.openai.com and DeepSeek, differing only in base URL and
// key; DeepSeek additionally interleaves reasoning content, which is
// surfaced as thinking events.
type OpenAIClient struct {
	client   *openai.Client
	provider string
}

// NewOpenAIClient builds the adapter for api.openai.com. The key comes from
// OPENAI_API_KEY or the container secret fallback.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey, err := resolveAPIKey("OPENAI_API_KEY", "/run/secrets/openai_api_key")
	if err != nil {
		return nil, err
	}
	slog.Info("Initializing OpenAI client")
	return &OpenAIClient{
		client:   openai.NewClient(apiKey),
		provider: "openai",
	}, nil
}

// NewDeepSeekClient builds the adapter for DeepSeek's OpenAI-compatible
// API. The key comes from DEEPSEEK_API_KEY or the container secret
// fallback.
func NewDeepSeekClient() (*OpenAIClient, error) {
	apiKey, err := resolveAPIKey("DEEPSEEK_API_KEY", "/run/secrets/deepseek_api_key")
	if err != nil {
		return nil, err
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = deepSeekBaseURL
	slog.Info("Initializing DeepSeek client", "base_url", deepSeekBaseURL)
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: "deepseek",
	}, nil
}

// newOpenAICompatClient wires an adapter against an arbitrary base URL.
// Used by tests to point at a mock server.
func newOpenAICompatClient(provider, apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
	}
}

// resolveAPIKey reads a provider key from the environment, falling back to
// the mounted secret file.
func resolveAPIKey(envVar, secretPath string) (string, error) {
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	keyBytes, err := os.ReadFile(secretPath)
	if err == nil {
		slog.Info("Read provider API key from mounted secret", "path", secretPath)
		return strings.TrimSpace(string(keyBytes)), nil
	}
	return "", fmt.Errorf("%s not set and secret %s not found", envVar, secretPath)
}

// Chat implements the LLMClient interface.
func (o *OpenAIClient) Chat(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams) (string, error) {
	slog.Debug("Chat completion", "provider", o.provider, "model", model)

	req := o.buildRequest(model, messages, params)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s API call failed: %w", o.provider, err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("provider returned no choices", "provider", o.provider, "model", model)
		return "", fmt.Errorf("%s returned no choices", o.provider)
	}
	slog.Debug("Received completion", "provider", o.provider,
		"finish_reason", resp.Choices[0].FinishReason)
	recordTokenUsage(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements the LLMClient interface.
//
// Each content delta becomes one token event. DeepSeek reasoning deltas
// become thinking events. The upstream stream is always closed, including
// when the callback aborts.
func (o *OpenAIClient) ChatStream(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {
	req := o.buildRequest(model, messages, params)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("%s stream open failed: %w", o.provider, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s stream read failed: %w", o.provider, err)
		}
		// With IncludeUsage the final frame has no choices, only totals.
		if resp.Usage != nil {
			recordTokenUsage(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.ReasoningContent != "" {
			if cbErr := callback(StreamEvent{Type: StreamEventThinking, Content: delta.ReasoningContent}); cbErr != nil {
				return cbErr
			}
		}
		if delta.Content != "" {
			if cbErr := callback(StreamEvent{Type: StreamEventToken, Content: delta.Content}); cbErr != nil {
				return cbErr
			}
		}
	}
}

func (o *OpenAIClient) buildRequest(model string, messages []datatypes.Message,
	params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

var _ LLMClient = (*OpenAIClient)(nil)
