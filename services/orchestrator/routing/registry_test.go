// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

func newRegistryServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/rest/v1/model_config", r.URL.Path)
		assert.Equal(t, "eq.aria", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"aria","config":{
			"chat":{"model":"gpt-4o-mini","mode":"streaming","description":"interactivo"},
			"compliance":{"model":"gpt-4o","mode":"standard"}
		}}]`))
	}))
}

func TestSupabaseRegistryFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newRegistryServer(t, &calls)
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)

	registry := NewSupabaseRegistry(sb)
	cfg, err := registry.Fetch(context.Background(), "aria")

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg["chat"].Model)
	assert.Equal(t, ModeStreaming, cfg["chat"].Mode)
	assert.Equal(t, "gpt-4o", cfg["compliance"].Model)
}

func TestSupabaseRegistryCachesAndInvalidates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newRegistryServer(t, &calls)
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)
	registry := NewSupabaseRegistry(sb)

	for i := 0; i < 3; i++ {
		_, err := registry.Fetch(context.Background(), "aria")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	registry.Invalidate()
	_, err = registry.Fetch(context.Background(), "aria")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSupabaseRegistryMissingRow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)

	registry := NewSupabaseRegistry(sb)
	_, err = registry.Fetch(context.Background(), "aria")
	assert.Error(t, err)
}
