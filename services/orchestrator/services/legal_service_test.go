// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
)

// scriptedLLM answers per model so the draft and verifier calls can be
// told apart.
type scriptedLLM struct {
	replies map[string]string
	errs    map[string]error
	calls   []string
	lastMsg map[string][]datatypes.Message
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		replies: make(map[string]string),
		errs:    make(map[string]error),
		lastMsg: make(map[string][]datatypes.Message),
	}
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, messages []datatypes.Message,
	params llm.GenerationParams) (string, error) {
	s.calls = append(s.calls, model)
	s.lastMsg[model] = messages
	if err := s.errs[model]; err != nil {
		return "", err
	}
	return s.replies[model], nil
}

func (s *scriptedLLM) ChatStream(ctx context.Context, model string, messages []datatypes.Message,
	params llm.GenerationParams, callback llm.StreamCallback) error {
	text, err := s.Chat(ctx, model, messages, params)
	if err != nil {
		return err
	}
	return callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: text})
}

func newTestLegalService(t *testing.T, client llm.LLMClient, fragments []datatypes.Fragment, retrieveErr error) *LegalService {
	t.Helper()
	svc, err := NewLegalService(LegalServiceConfig{
		Retriever: &mockRetriever{fragments: fragments, err: retrieveErr},
		Resolver:  routing.NewResolver(nil, "aria"),
		LLM:       client,
	})
	require.NoError(t, err)
	return svc
}

func TestLegalAnswerGroundedPath(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.replies["gpt-4o"] = "Según DS 40, Artículo 5, el reglamento interno es obligatorio."
	client.replies["gpt-4o-mini"] = "Según DS 40, Artículo 5, el reglamento interno es obligatorio."

	fragments := []datatypes.Fragment{
		{Content: "Artículo 5: reglamento interno obligatorio.", Source: "DS 40"},
	}
	svc := newTestLegalService(t, client, fragments, nil)

	resp, err := svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "¿Es obligatorio el reglamento interno?"})

	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.Equal(t, datatypes.TransparencyFromCorpus, resp.Transparency)
	assert.Contains(t, resp.Text, "DS 40, Artículo 5")
	require.Len(t, resp.UsedContext, 1)

	// Draft on the compliance model, verification on the cheap model.
	require.Len(t, client.calls, 2)
	assert.Equal(t, "gpt-4o", client.calls[0])
	assert.Equal(t, "gpt-4o-mini", client.calls[1])

	// The draft payload is structured JSON with tagged fragments.
	var payload legalUserPayload
	require.NoError(t, json.Unmarshal([]byte(client.lastMsg["gpt-4o"][1].Content), &payload))
	require.Len(t, payload.Context, 1)
	assert.Contains(t, payload.Context[0], "[FUENTE: DS 40]")
	assert.Equal(t, "¿Es obligatorio el reglamento interno?", payload.Query)
}

func TestLegalAnswerNoContextIsSuccess(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.replies["gpt-4o"] = "No encontré referencia en la base legal interna. En términos generales..."
	client.replies["gpt-4o-mini"] = "No encontré referencia en la base legal interna. En términos generales..."

	svc := newTestLegalService(t, client, nil, nil)
	resp, err := svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "tema sin cobertura interna"})

	require.NoError(t, err)
	assert.Equal(t, datatypes.TransparencyNoInternalContext, resp.Transparency)
	assert.True(t, resp.Verified)
	assert.Empty(t, resp.UsedContext)
	assert.Contains(t, resp.Text, "No encontré referencia")

	// The verifier saw the empty-context placeholder, not a fabricated one.
	assert.Contains(t, client.lastMsg["gpt-4o-mini"][1].Content, "(sin contexto interno)")
}

func TestLegalAnswerVerifierRewrites(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.replies["gpt-4o"] = "El DS 99 exige auditorías trimestrales."
	client.replies["gpt-4o-mini"] = "El contexto no menciona el DS 99; según DS 40, Artículo 5..."

	fragments := []datatypes.Fragment{{Content: "Artículo 5...", Source: "DS 40"}}
	svc := newTestLegalService(t, client, fragments, nil)

	resp, err := svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "auditorías"})

	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.Equal(t, client.replies["gpt-4o-mini"], resp.Text)
}

func TestLegalAnswerVerifierFailureReturnsUnverifiedDraft(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.replies["gpt-4o"] = "Respuesta preliminar citando DS 40."
	client.errs["gpt-4o-mini"] = fmt.Errorf("verifier provider down")

	fragments := []datatypes.Fragment{{Content: "Artículo 5...", Source: "DS 40"}}
	svc := newTestLegalService(t, client, fragments, nil)

	resp, err := svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "consulta"})

	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.Equal(t, "Respuesta preliminar citando DS 40.", resp.Text)
	// Transparency still reflects retrieval, not the verifier outcome.
	assert.Equal(t, datatypes.TransparencyFromCorpus, resp.Transparency)
}

func TestLegalAnswerDraftFailureSurfaces(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.errs["gpt-4o"] = fmt.Errorf("provider 500")

	svc := newTestLegalService(t, client, nil, nil)
	_, err := svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "consulta"})

	require.Error(t, err)
	assert.True(t, IsUpstreamError(err))
}

func TestLegalAnswerRegistryComplianceModelWins(t *testing.T) {
	t.Parallel()

	client := newScriptedLLM()
	client.replies["deepseek-chat"] = "borrador"
	client.replies["gpt-4o-mini"] = "borrador"

	svc, err := NewLegalService(LegalServiceConfig{
		Retriever: &mockRetriever{},
		Resolver: routing.NewResolver(&stubRegistryForLegal{cfg: routing.Config{
			"compliance": {Model: "deepseek-chat", Mode: routing.ModeStandard},
		}}, "aria"),
		LLM: client,
	})
	require.NoError(t, err)

	_, err = svc.Answer(context.Background(), &datatypes.LegalRequest{Query: "consulta"})
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", client.calls[0])
}

type stubRegistryForLegal struct {
	cfg routing.Config
}

func (s *stubRegistryForLegal) Fetch(ctx context.Context, agentID string) (routing.Config, error) {
	return s.cfg, nil
}
