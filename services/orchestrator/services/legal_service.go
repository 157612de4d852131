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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/retrieval"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
)

// legalMaxTokens bounds the legal draft; compliance answers cite rather
// than elaborate.
const legalMaxTokens = 1200

// legalFallbackModel serves the legal path when the registry has no
// compliance entry.
const legalFallbackModel = "gpt-4o"

// legalSystemPrompt pins the answering rules for the legal path: ground
// every claim in the provided fragments, cite in Chilean normative style,
// and admit when the internal corpus has nothing.
const legalSystemPrompt = `Eres A.R.I.A., asistente legal de Preventi Flow especializado en normativa chilena de prevención de riesgos.
Reglas:
1. Responde únicamente con base en el contexto entregado. No inventes normas ni artículos.
2. Cita cada afirmación normativa con el formato "DS 40, Artículo 5" o equivalente.
3. Si el contexto está vacío o no cubre la consulta, decláralo explícitamente: "No encontré referencia en la base legal interna." y responde con criterio general señalándolo.
4. Responde en español, en tono profesional y accionable.`

// legalUserPayload is the structured user message for the legal draft. The
// JSON envelope keeps fragment boundaries unambiguous for the model.
type legalUserPayload struct {
	Context     []string `json:"context"`
	Query       string   `json:"query"`
	Instruction string   `json:"instruction"`
}

// LegalService answers compliance questions over the keyword corpus and
// verifies every draft for consistency with its sources.
type LegalService struct {
	retriever retrieval.Retriever
	resolver  *routing.Resolver
	llm       llm.LLMClient
	verifier  *Verifier
	timeout   time.Duration
}

// LegalServiceConfig wires a LegalService.
type LegalServiceConfig struct {
	Retriever retrieval.Retriever
	Resolver  *routing.Resolver
	LLM       llm.LLMClient
	Timeout   time.Duration
}

// NewLegalService validates the wiring and builds the service.
func NewLegalService(cfg LegalServiceConfig) (*LegalService, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("legal service requires a retriever")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("legal service requires a model resolver")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("legal service requires an LLM client")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	return &LegalService{
		retriever: cfg.Retriever,
		resolver:  cfg.Resolver,
		llm:       cfg.LLM,
		verifier:  NewVerifier(cfg.LLM),
		timeout:   cfg.Timeout,
	}, nil
}

// Answer runs the legal path: retrieve, draft, verify.
//
// Zero retrieved fragments is a normal outcome; the response then carries
// the no-internal-context transparency flag. A verifier failure downgrades
// the response to the unverified draft instead of failing the request.
func (s *LegalService) Answer(ctx context.Context, req *datatypes.LegalRequest) (*datatypes.LegalResponse, error) {
	ctx, span := askTracer.Start(ctx, "LegalService.Answer")
	defer span.End()

	fragments, err := s.retriever.Retrieve(ctx, req.Query, retrieval.MatchCount)
	if err != nil {
		// Keyword retrieval degrades per table internally; an error here
		// means the whole lookup was unusable.
		span.SetStatus(codes.Error, "retrieval failed")
		span.RecordError(err)
		return nil, &UpstreamError{Component: "retrieval", Err: err}
	}
	span.SetAttributes(attribute.Int("legal.fragments", len(fragments)))

	model := s.legalModel(ctx, req.Query)
	span.SetAttributes(attribute.String("legal.model", model))

	draft, err := s.draft(ctx, model, req.Query, fragments)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "generation timeout")
			return nil, &TimeoutError{Operation: "legal generation", Limit: s.timeout}
		}
		span.SetStatus(codes.Error, "generation failed")
		return nil, &UpstreamError{Component: "llm", Err: err}
	}

	verified := true
	finalText, err := s.verifier.Verify(ctx, draft, fragments)
	if err != nil {
		slog.Warn("consistency verification unavailable, returning unverified draft",
			"model", model, "error", err)
		finalText = draft
		verified = false
	}

	return datatypes.NewLegalResponse(finalText, fragments, verified), nil
}

// legalModel resolves the compliance model from the registry, falling back
// to the fixed default.
func (s *LegalService) legalModel(ctx context.Context, query string) string {
	res := s.resolver.Resolve(ctx, datatypes.UseCaseCompliance, query, 0)
	if res.FromRegistry {
		return res.Model
	}
	return routing.NormalizeModel(legalFallbackModel)
}

func (s *LegalService) draft(ctx context.Context, model, query string, fragments []datatypes.Fragment) (string, error) {
	contexts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		contexts = append(contexts, fmt.Sprintf("[FUENTE: %s] %s", f.Source, f.Content))
	}
	payload, err := json.Marshal(legalUserPayload{
		Context:     contexts,
		Query:       query,
		Instruction: "Responde la consulta citando las fuentes del contexto cuando las uses.",
	})
	if err != nil {
		return "", fmt.Errorf("encode legal payload: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.llm.Chat(genCtx, model, []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: legalSystemPrompt},
		{Role: datatypes.RoleUser, Content: string(payload)},
	}, llm.GenerationParams{
		Temperature: &defaultTemperature,
		MaxTokens:   llm.IntPtr(legalMaxTokens),
	})
}

// fragmentDigest renders fragments for the verifier prompt, one tagged
// block per fragment.
func fragmentDigest(fragments []datatypes.Fragment) string {
	if len(fragments) == 0 {
		return "(sin contexto interno)"
	}
	blocks := make([]string, 0, len(fragments))
	for i, f := range fragments {
		blocks = append(blocks, fmt.Sprintf("# Frag %d — %s\n%s", i+1, f.Source, f.Content))
	}
	return strings.Join(blocks, "\n\n")
}
