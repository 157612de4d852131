// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

func constitutionRouter(store *stubConstitutions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/admin/constitution", HandleConstitutionUpsert(store))
	r.GET("/v1/admin/constitution/:agent", HandleConstitutionGet(store))
	return r
}

func TestHandleConstitutionUpsert(t *testing.T) {
	store := &stubConstitutions{}
	router := constitutionRouter(store)

	w := postJSON(t, router, "/v1/admin/constitution",
		`{"constitution":"Asistir con rigor normativo.","metadata":{"principios":["precisión"]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"updated"`)
	assert.Contains(t, w.Body.String(), datatypes.DefaultAgentName)

	require.Len(t, store.upserted, 1)
	stored := store.upserted[0]
	// Agent name defaults when the request omits it.
	assert.Equal(t, datatypes.DefaultAgentName, stored.AgentName)
	assert.Equal(t, "Asistir con rigor normativo.", stored.Text)
	require.NotNil(t, stored.Metadata)
	assert.Equal(t, []string{"precisión"}, stored.Metadata.Principles)
}

func TestHandleConstitutionUpsert_Validation(t *testing.T) {
	store := &stubConstitutions{}
	router := constitutionRouter(store)

	w := postJSON(t, router, "/v1/admin/constitution", "{bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")

	// Missing constitution text.
	w = postJSON(t, router, "/v1/admin/constitution", `{"agentName":"A.R.I.A."}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation failed")

	assert.Empty(t, store.upserted)
}

func TestHandleConstitutionUpsert_StoreFailure(t *testing.T) {
	store := &stubConstitutions{upsertErr: errors.New("supabase: 503")}
	router := constitutionRouter(store)

	w := postJSON(t, router, "/v1/admin/constitution", `{"constitution":"texto"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "failed to persist constitution")
}

func TestHandleConstitutionGet(t *testing.T) {
	store := &stubConstitutions{charter: &datatypes.Constitution{
		AgentName: datatypes.DefaultAgentName,
		Text:      "Asistir en prevención de riesgos.",
	}}
	router := constitutionRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/constitution/A.R.I.A.", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var charter datatypes.Constitution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &charter))
	assert.Equal(t, datatypes.DefaultAgentName, charter.AgentName)
	assert.Equal(t, "Asistir en prevención de riesgos.", charter.Text)
}

func TestHandleConstitutionGet_NotFound(t *testing.T) {
	store := &stubConstitutions{err: errors.New("no rows")}
	router := constitutionRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/constitution/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no constitution for agent")
}
