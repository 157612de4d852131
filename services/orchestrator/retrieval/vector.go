// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval pulls grounding fragments out of the normative corpus.
// Two strategies coexist: vector similarity over pgvector (the RAG chat
// path) and keyword matching over the raw text tables (the legal answer
// path). They are deliberately independent; neither falls back to the
// other.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

var tracer = otel.Tracer("preventiflow.aria.retrieval")

// Defaults for the similarity search. The threshold filter is strict:
// a fragment at exactly the threshold is discarded.
const (
	SimilarityThreshold = 0.75
	MatchCount          = 5
)

// Embedder turns a query into the corpus' vector space.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever is the shape both strategies share.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]datatypes.Fragment, error)
}

// matchRow is the result shape of the match_normativas RPC. The id column
// is a uuid, so PostgREST serializes it as a string; any tolerates schema
// variants that key the corpus numerically.
type matchRow struct {
	ID          any     `json:"id"`
	NombreNorma string  `json:"nombre_norma"`
	TextoLimpio string  `json:"texto_limpio"`
	Similarity  float64 `json:"similarity"`
}

// VectorRetriever runs semantic search through the match_normativas RPC.
//
// # Description
//
// The query is embedded, the RPC returns candidates above the threshold,
// and the client re-filters strictly and orders by similarity descending.
// Equal scores keep their arrival order, so result ordering is stable
// across runs. Embedding failures and RPC failures both surface to the
// caller; a degraded vector path must be visible, not silently empty.
type VectorRetriever struct {
	sb        *supabase.Client
	embedder  Embedder
	threshold float64
}

// NewVectorRetriever creates a vector retriever with the default
// similarity threshold.
func NewVectorRetriever(sb *supabase.Client, embedder Embedder) *VectorRetriever {
	return &VectorRetriever{sb: sb, embedder: embedder, threshold: SimilarityThreshold}
}

// Retrieve implements the Retriever interface.
func (v *VectorRetriever) Retrieve(ctx context.Context, query string, limit int) ([]datatypes.Fragment, error) {
	ctx, span := tracer.Start(ctx, "VectorRetriever.Retrieve")
	defer span.End()

	if limit <= 0 {
		limit = MatchCount
	}

	embedding, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	args := map[string]any{
		"query_embedding": embedding,
		"match_threshold": v.threshold,
		"match_count":     limit,
	}
	var rows []matchRow
	if err := v.sb.RPC(ctx, "match_normativas", args, &rows); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	fragments := make([]datatypes.Fragment, 0, len(rows))
	for _, row := range rows {
		if row.Similarity <= v.threshold {
			continue
		}
		fragments = append(fragments, datatypes.Fragment{
			ID:      fmt.Sprintf("%v", row.ID),
			Content: row.TextoLimpio,
			Source:  row.NombreNorma,
			Score:   row.Similarity,
		})
	}
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})

	span.SetAttributes(attribute.Int("retrieval.fragments", len(fragments)))
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRetrievalFragments("vector", len(fragments))
	}
	slog.Debug("vector retrieval done", "candidates", len(rows), "kept", len(fragments))
	return fragments, nil
}

var _ Retriever = (*VectorRetriever)(nil)
