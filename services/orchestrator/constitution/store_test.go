// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package constitution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

func TestLatestOrdersByTimestamp(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/constituciones_agente", r.URL.Path)
		assert.Equal(t, "eq.A.R.I.A.", r.URL.Query().Get("nombre_agente"))
		assert.Equal(t, "fecha_actualizacion.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{
			"nombre_agente":"A.R.I.A.",
			"constitucion":"Actúa con precisión normativa.",
			"metadata":{"principios":["trazabilidad"],"enfoque_legal":["seguridad laboral"]},
			"fecha_actualizacion":"2026-08-20T12:30:00Z"
		}]`))
	}))
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)

	got, err := NewSupabaseStore(sb).Latest(context.Background(), datatypes.DefaultAgentName)
	require.NoError(t, err)

	assert.Equal(t, "Actúa con precisión normativa.", got.Text)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, []string{"trazabilidad"}, got.Metadata.Principles)
	assert.Equal(t, 2026, got.UpdatedAt.Year())
}

func TestLatestMissingAgentErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)

	_, err = NewSupabaseStore(sb).Latest(context.Background(), "desconocido")
	assert.Error(t, err)
}

func TestUpsertStampsFreshTimestamp(t *testing.T) {
	t.Parallel()

	var payload constitutionRow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "nombre_agente", r.URL.Query().Get("on_conflict"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sb, err := supabase.New(server.URL, "test-key")
	require.NoError(t, err)

	stale := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	err = NewSupabaseStore(sb).Upsert(context.Background(), &datatypes.Constitution{
		AgentName: datatypes.DefaultAgentName,
		Text:      "Nueva carta",
		UpdatedAt: stale,
	})
	require.NoError(t, err)

	assert.Equal(t, datatypes.DefaultAgentName, payload.AgentName)
	stamped, err := time.Parse(time.RFC3339, payload.UpdatedAt)
	require.NoError(t, err)
	assert.True(t, stamped.After(stale), "timestamp must be freshly stamped, not the caller's")
}
