// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     AskRequest
		wantErr bool
	}{
		{
			name: "valid minimal request",
			req:  AskRequest{Question: "¿Qué exige el DS 44?"},
		},
		{
			name: "valid with session and use case",
			req: AskRequest{
				Question:  "Resumen del protocolo de emergencia",
				SessionID: "f47ac10b-58cc-4372-a567-0e02b2c3d479",
				UseCase:   UseCaseDocuments,
			},
		},
		{
			name:    "missing question",
			req:     AskRequest{SessionID: "abc"},
			wantErr: true,
		},
		{
			name:    "question over byte limit",
			req:     AskRequest{Question: strings.Repeat("a", MaxQuestionBytes+1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAskRequestEnsureDefaults(t *testing.T) {
	t.Parallel()

	req := AskRequest{Question: "hola"}
	req.EnsureDefaults()

	assert.NotEmpty(t, req.SessionID)
	assert.Equal(t, UseCaseChat, req.UseCase)

	// Caller-provided values survive.
	req2 := AskRequest{Question: "hola", SessionID: "s-1", UseCase: UseCaseCompliance}
	req2.EnsureDefaults()
	assert.Equal(t, "s-1", req2.SessionID)
	assert.Equal(t, UseCaseCompliance, req2.UseCase)
}

func TestNewLegalResponseTransparency(t *testing.T) {
	t.Parallel()

	empty := NewLegalResponse("sin contexto", nil, true)
	require.NotNil(t, empty)
	assert.Equal(t, TransparencyNoInternalContext, empty.Transparency)

	grounded := NewLegalResponse("según DS 40", []Fragment{{Content: "...", Source: "DS 40"}}, true)
	assert.Equal(t, TransparencyFromCorpus, grounded.Transparency)
}
