// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a Client pointed at a mock PostgREST server.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := New(serverURL, "test-key")
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("", "key")
	assert.Error(t, err)

	_, err = New("https://proj.supabase.co", "")
	assert.Error(t, err)

	_, err = New("not a url", "key")
	assert.Error(t, err)
}

func TestSelectSendsAuthHeaders(t *testing.T) {
	t.Parallel()

	var gotAPIKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/rest/v1/session_summaries", r.URL.Path)
		assert.Equal(t, "eq.s-1", r.URL.Query().Get("session_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"session_id":"s-1","summary":"Q: hola"}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var rows []map[string]string
	q := url.Values{}
	q.Set("session_id", "eq.s-1")
	err := client.Select(context.Background(), "session_summaries", q, &rows)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Q: hola", rows[0]["summary"])
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestUpsertSetsPreferHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "session_id", r.URL.Query().Get("on_conflict"))
		assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Upsert(context.Background(), "session_summaries", "session_id",
		map[string]string{"session_id": "s-1", "summary": "Q: hola"}, nil)

	assert.NoError(t, err)
}

func TestRetryOnServiceUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var rows []map[string]any
	err := client.Select(context.Background(), "model_config", nil, &rows)

	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnBadRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"malformed"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.Insert(context.Background(), "interacciones", map[string]string{})

	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable)
}

func TestRPCPostsArguments(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/match_normativas", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"nombre_norma":"DS 40","texto_limpio":"...","similarity":0.91}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	var rows []map[string]any
	err := client.RPC(context.Background(), "match_normativas",
		map[string]any{"match_threshold": 0.75, "match_count": 5}, &rows)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "DS 40", rows[0]["nombre_norma"])
}
