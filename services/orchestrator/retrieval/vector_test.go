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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// stubEmbedder returns a fixed vector or error.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

func newMatchServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/match_normativas", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newVector(t *testing.T, serverURL string) *VectorRetriever {
	t.Helper()
	sb, err := supabase.New(serverURL, "test-key")
	require.NoError(t, err)
	return NewVectorRetriever(sb, &stubEmbedder{vector: make([]float32, 768)})
}

func TestVectorRetrieveFiltersStrictlyAboveThreshold(t *testing.T) {
	t.Parallel()

	server := newMatchServer(t, `[
		{"id":1,"nombre_norma":"DS 40","texto_limpio":"obligación de informar","similarity":0.91},
		{"id":2,"nombre_norma":"DS 44","texto_limpio":"gestión preventiva","similarity":0.75},
		{"id":3,"nombre_norma":"Ley 16.744","texto_limpio":"seguro social","similarity":0.80}
	]`)
	defer server.Close()

	fragments, err := newVector(t, server.URL).Retrieve(context.Background(), "obligación de informar", 5)

	require.NoError(t, err)
	require.Len(t, fragments, 2)
	// Exactly-at-threshold (0.75) is discarded; survivors ordered by score.
	assert.Equal(t, "DS 40", fragments[0].Source)
	assert.Equal(t, "Ley 16.744", fragments[1].Source)
}

func TestVectorRetrieveUUIDKeyedRows(t *testing.T) {
	t.Parallel()

	// match_normativas returns id as uuid, so the wire value is a string.
	server := newMatchServer(t, `[
		{"id":"f47ac10b-58cc-4372-a567-0e02b2c3d479","nombre_norma":"DS 44","texto_limpio":"gestión preventiva","similarity":0.88}
	]`)
	defer server.Close()

	fragments, err := newVector(t, server.URL).Retrieve(context.Background(), "gestión preventiva", 5)

	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", fragments[0].ID)
	assert.Equal(t, "DS 44", fragments[0].Source)
}

func TestVectorRetrieveStableTieOrdering(t *testing.T) {
	t.Parallel()

	server := newMatchServer(t, `[
		{"id":10,"nombre_norma":"Norma A","texto_limpio":"a","similarity":0.80},
		{"id":11,"nombre_norma":"Norma B","texto_limpio":"b","similarity":0.80},
		{"id":12,"nombre_norma":"Norma C","texto_limpio":"c","similarity":0.80}
	]`)
	defer server.Close()

	retriever := newVector(t, server.URL)
	first, err := retriever.Retrieve(context.Background(), "norma", 5)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := retriever.Retrieve(context.Background(), "norma", 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"Norma A", "Norma B", "Norma C"},
		[]string{first[0].Source, first[1].Source, first[2].Source})
}

func TestVectorRetrieveEmbeddingFailureSurfaces(t *testing.T) {
	t.Parallel()

	server := newMatchServer(t, `[]`)
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)
	retriever := NewVectorRetriever(sb, &stubEmbedder{err: fmt.Errorf("dimension mismatch")})

	_, err = retriever.Retrieve(context.Background(), "norma", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
}

func TestVectorRetrieveRPCFailureSurfaces(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"function does not exist"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newVector(t, server.URL).Retrieve(context.Background(), "norma", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity search")
}

func TestVectorRetrieveEmptyResultIsSuccess(t *testing.T) {
	t.Parallel()

	server := newMatchServer(t, `[]`)
	defer server.Close()

	fragments, err := newVector(t, server.URL).Retrieve(context.Background(), "tema sin cobertura", 5)
	require.NoError(t, err)
	assert.Empty(t, fragments)
}
