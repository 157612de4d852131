// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// DefaultKeywordTables is the lookup order for the legal corpus. Earlier
// tables win when the limit is reached.
var DefaultKeywordTables = []string{"legal_corpus", "documents", "normas_textos"}

type keywordRow struct {
	ID      any    `json:"id"`
	Content string `json:"content"`
}

// KeywordRetriever matches the query's anchor token against the text
// tables with ILIKE.
//
// # Description
//
// Tables are queried concurrently but merged in configured order, so the
// result is identical to probing them one by one. A table that errors
// (missing, renamed, permission gap) is logged and skipped; the legal path
// prefers a thinner answer over an outage.
type KeywordRetriever struct {
	sb     *supabase.Client
	tables []string
}

// NewKeywordRetriever creates a keyword retriever over the given tables,
// defaulting to DefaultKeywordTables.
func NewKeywordRetriever(sb *supabase.Client, tables []string) *KeywordRetriever {
	if len(tables) == 0 {
		tables = DefaultKeywordTables
	}
	return &KeywordRetriever{sb: sb, tables: tables}
}

// anchorToken picks the token the ILIKE filter matches on: the first token
// of four or more runes, or the first token when none qualifies.
func anchorToken(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return ""
	}
	for _, f := range fields {
		if len([]rune(f)) >= 4 {
			return f
		}
	}
	return fields[0]
}

// Retrieve implements the Retriever interface.
func (k *KeywordRetriever) Retrieve(ctx context.Context, query string, limit int) ([]datatypes.Fragment, error) {
	ctx, span := tracer.Start(ctx, "KeywordRetriever.Retrieve")
	defer span.End()

	if limit <= 0 {
		limit = MatchCount
	}
	token := anchorToken(query)
	if token == "" {
		return nil, nil
	}

	perTable := make([][]datatypes.Fragment, len(k.tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range k.tables {
		g.Go(func() error {
			q := url.Values{}
			q.Set("select", "id,content")
			q.Set("content", "ilike.*"+token+"*")
			q.Set("limit", fmt.Sprintf("%d", limit))

			var rows []keywordRow
			if err := k.sb.Select(gctx, table, q, &rows); err != nil {
				slog.Warn("keyword table lookup failed", "table", table, "error", err)
				return nil
			}
			fragments := make([]datatypes.Fragment, 0, len(rows))
			for _, row := range rows {
				fragments = append(fragments, datatypes.Fragment{
					ID:      fmt.Sprintf("%v", row.ID),
					Content: row.Content,
					Source:  table,
					Meta:    map[string]any{"table": table, "match": token},
				})
			}
			perTable[i] = fragments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]datatypes.Fragment, 0, limit)
merge:
	for _, fragments := range perTable {
		for _, f := range fragments {
			if len(merged) == limit {
				break merge
			}
			merged = append(merged, f)
		}
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRetrievalFragments("keyword", len(merged))
	}
	return merged, nil
}

var _ Retriever = (*KeywordRetriever)(nil)
