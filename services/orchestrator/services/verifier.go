// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
)

// verifierModel is cheap and deterministic on purpose: the verifier only
// compares a draft against fragments, it never needs deep reasoning.
const verifierModel = "gpt-4o-mini"

const verifierTimeout = 30 * time.Second

const verifierSystemPrompt = `Eres un verificador de coherencia. Recibirás un CONTEXTO (fragmentos normativos) y una RESPUESTA_PROPUESTA.
Si la respuesta es coherente con el contexto y no afirma nada que el contexto contradiga, devuélvela EXACTAMENTE igual, sin comentarios.
Si contiene afirmaciones no sustentadas o contradictorias, reescríbela usando únicamente el contexto, conservando el formato.
Devuelve solo el texto final, sin explicaciones.`

// Verifier runs the consistency pass over legal drafts.
type Verifier struct {
	llm llm.LLMClient
}

// NewVerifier creates a verifier on the shared provider router.
func NewVerifier(client llm.LLMClient) *Verifier {
	return &Verifier{llm: client}
}

// Verify returns the draft unchanged when it is consistent with the
// fragments, or a rewrite grounded only in them. Temperature zero so the
// pass-through case reproduces the draft byte for byte.
func (v *Verifier) Verify(ctx context.Context, draft string, fragments []datatypes.Fragment) (string, error) {
	userMsg := fmt.Sprintf("CONTEXTO:\n%s\n\nRESPUESTA_PROPUESTA:\n%s", fragmentDigest(fragments), draft)

	verifyCtx, cancel := context.WithTimeout(ctx, verifierTimeout)
	defer cancel()

	text, err := v.llm.Chat(verifyCtx, routing.NormalizeModel(verifierModel), []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: verifierSystemPrompt},
		{Role: datatypes.RoleUser, Content: userMsg},
	}, llm.GenerationParams{
		Temperature: llm.Float32Ptr(0.0),
		MaxTokens:   llm.IntPtr(legalMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("consistency verification: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("consistency verification returned empty text")
	}
	return text, nil
}
