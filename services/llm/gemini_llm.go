// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient talks to the Generative Language REST API directly. The
// Gemini wire format differs from the OpenAI shape in three ways this
// adapter hides: system prompts travel as systemInstruction, the assistant
// role is called "model", and answers arrive as candidate content parts.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// NewGeminiClient builds the adapter. The key comes from GOOGLE_API_KEY or
// the container secret fallback.
func NewGeminiClient() (*GeminiClient, error) {
	apiKey, err := resolveAPIKey("GOOGLE_API_KEY", "/run/secrets/google_api_key")
	if err != nil {
		return nil, err
	}
	slog.Info("Initializing Gemini client")
	return &GeminiClient{
		baseURL:    defaultGeminiBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 4 * time.Minute},
	}, nil
}

// Chat implements the LLMClient interface.
func (g *GeminiClient) Chat(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams) (string, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, qualifyModel(model), g.apiKey)

	body, err := json.Marshal(buildGeminiRequest(messages, params))
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if u := parsed.UsageMetadata; u != nil {
		recordTokenUsage(model, u.PromptTokenCount, u.CandidatesTokenCount)
	}
	if len(parsed.Candidates) == 0 {
		slog.Warn("gemini returned no candidates", "model", model)
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// ChatStream implements the LLMClient interface using the SSE variant of
// the generate endpoint. Each data frame carries a partial candidate whose
// text is forwarded as one token event.
func (g *GeminiClient) ChatStream(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {
	endpoint := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse&key=%s", g.baseURL, qualifyModel(model), g.apiKey)

	body, err := json.Marshal(buildGeminiRequest(messages, params))
	if err != nil {
		return fmt.Errorf("gemini: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini stream open failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gemini stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var usage *geminiUsageMetadata
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk geminiGenerateResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("gemini: decode stream chunk: %w", err)
		}
		// Counts are cumulative per frame; only the last one is recorded.
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			if cbErr := callback(StreamEvent{Type: StreamEventToken, Content: part.Text}); cbErr != nil {
				return cbErr
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gemini stream read failed: %w", err)
	}
	if usage != nil {
		recordTokenUsage(model, usage.PromptTokenCount, usage.CandidatesTokenCount)
	}
	return nil
}

func buildGeminiRequest(messages []datatypes.Message, params GenerationParams) geminiGenerateRequest {
	req := geminiGenerateRequest{}
	for _, m := range messages {
		switch m.Role {
		case datatypes.RoleSystem:
			req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case datatypes.RoleAssistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if params.Temperature != nil || params.TopK != nil || params.TopP != nil ||
		params.MaxTokens != nil || len(params.Stop) > 0 {
		req.GenerationConfig = &geminiGenerationConfig{
			Temperature:     params.Temperature,
			TopK:            params.TopK,
			TopP:            params.TopP,
			MaxOutputTokens: params.MaxTokens,
			StopSequences:   params.Stop,
		}
	}
	return req
}

// qualifyModel prepends the "models/" resource prefix when the registry
// hands back a bare model id.
func qualifyModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

var _ LLMClient = (*GeminiClient)(nil)
