// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// EmbeddingModel is the query-embedding model the corpus was indexed
	// with. The pgvector column and the similarity RPC both assume its
	// dimensionality; changing one side without re-indexing breaks
	// retrieval silently, hence the hard check below.
	EmbeddingModel = "models/embedding-001"

	// EmbeddingDimensions is the expected vector size of EmbeddingModel.
	EmbeddingDimensions = 768
)

// GeminiEmbedder produces query embeddings via the embedContent endpoint.
type GeminiEmbedder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type geminiEmbedRequest struct {
	Model    string        `json:"model"`
	Content  geminiContent `json:"content"`
	TaskType string        `json:"taskType"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// NewGeminiEmbedder builds the embedder. The key comes from GOOGLE_API_KEY
// or the container secret fallback.
func NewGeminiEmbedder() (*GeminiEmbedder, error) {
	apiKey, err := resolveAPIKey("GOOGLE_API_KEY", "/run/secrets/google_api_key")
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{
		baseURL:    defaultGeminiBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// EmbedQuery embeds one retrieval query and validates the vector size
// against the corpus dimensionality.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	endpoint := fmt.Sprintf("%s/%s:embedContent?key=%s", g.baseURL, EmbeddingModel, g.apiKey)

	body, err := json.Marshal(geminiEmbedRequest{
		Model:    EmbeddingModel,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: "RETRIEVAL_QUERY",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: encode embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini embedding returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gemini: decode embedding: %w", err)
	}
	if len(parsed.Embedding.Values) != EmbeddingDimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, corpus expects %d",
			len(parsed.Embedding.Values), EmbeddingDimensions)
	}
	return parsed.Embedding.Values, nil
}
