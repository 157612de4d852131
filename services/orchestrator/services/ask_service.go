// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the orchestration logic between HTTP handlers
// and the domain components: prompt assembly, model resolution, provider
// calls, and the post-answer bookkeeping.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/constitution"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/prompt"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/retrieval"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/session"
)

var askTracer = otel.Tracer("preventiflow.aria.services")

// DefaultGenerationTimeout bounds the blocking (non-streaming) provider
// call.
const DefaultGenerationTimeout = 90 * time.Second

// generationSystemPrompt frames every generated answer. Markdown because
// the frontend renders it.
const generationSystemPrompt = "Eres el asistente A.R.I.A. Responde en español, de forma profesional y precisa, usando formato Markdown (títulos, listas, tablas si corresponde)."

// greetingAnswer is returned verbatim for trivial salutations, skipping
// retrieval and generation entirely.
const greetingAnswer = "¡Hola! Soy A.R.I.A., tu asistente en prevención de riesgos. ¿En qué puedo ayudarte hoy?"

// GreetingModel is the model label reported when the greeting shortcut
// answered, so dashboards can separate it from real generations.
const GreetingModel = "greeting"

var greetingPattern = regexp.MustCompile(`(?i)^\s*(hola|buenas|buenos días|buenas tardes|buenas noches|hey|qué tal|hello|hi)[\s.,!¡¿?]*$`)

// defaultTemperature keeps answers factual across every path.
var defaultTemperature = float32(0.2)

// TurnPlan is everything needed to generate one answer: the resolved model,
// the assembled messages, and the sources behind the context block. The
// streaming handler and the standard path share it.
type TurnPlan struct {
	SessionID string
	UseCase   string
	Question  string
	Model     string
	Mode      routing.Mode
	MaxTokens int
	Messages  []datatypes.Message
	Sources   []datatypes.Source

	// Greeting is non-empty when the turn short-circuits to a canned
	// welcome; Model is then GreetingModel and Messages is empty.
	Greeting string
}

// AskService orchestrates assistant chat turns.
type AskService struct {
	constitutions constitution.Store
	summaries     session.Store
	retriever     retrieval.Retriever
	resolver      *routing.Resolver
	llm           llm.LLMClient
	interactions  *InteractionLog
	agentName     string
	timeout       time.Duration
}

// AskServiceConfig wires an AskService. Interactions may be nil to disable
// the audit trail.
type AskServiceConfig struct {
	Constitutions constitution.Store
	Summaries     session.Store
	Retriever     retrieval.Retriever
	Resolver      *routing.Resolver
	LLM           llm.LLMClient
	Interactions  *InteractionLog
	AgentName     string
	Timeout       time.Duration
}

// NewAskService validates the wiring and builds the service.
func NewAskService(cfg AskServiceConfig) (*AskService, error) {
	if cfg.Constitutions == nil {
		return nil, fmt.Errorf("ask service requires a constitution store")
	}
	if cfg.Summaries == nil {
		return nil, fmt.Errorf("ask service requires a session store")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("ask service requires a retriever")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("ask service requires a model resolver")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("ask service requires an LLM client")
	}
	if cfg.AgentName == "" {
		cfg.AgentName = datatypes.DefaultAgentName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	return &AskService{
		constitutions: cfg.Constitutions,
		summaries:     cfg.Summaries,
		retriever:     cfg.Retriever,
		resolver:      cfg.Resolver,
		llm:           cfg.LLM,
		interactions:  cfg.Interactions,
		agentName:     cfg.AgentName,
		timeout:       cfg.Timeout,
	}, nil
}

// Timeout returns the configured generation deadline.
func (s *AskService) Timeout() time.Duration { return s.timeout }

// Prepare assembles the turn: greeting shortcut, constitution, rolling
// summary, retrieved context, model resolution, prompt.
//
// A summary read failure degrades to an empty summary (warn log); a
// retrieval failure surfaces, because a silently context-free RAG answer
// would misrepresent itself as grounded.
func (s *AskService) Prepare(ctx context.Context, req *datatypes.AskRequest) (*TurnPlan, error) {
	ctx, span := askTracer.Start(ctx, "AskService.Prepare")
	defer span.End()

	req.EnsureDefaults()
	span.SetAttributes(
		attribute.String("ask.use_case", req.UseCase),
		attribute.Int("ask.question_chars", utf8.RuneCountInString(req.Question)),
	)

	if greetingPattern.MatchString(req.Question) {
		return &TurnPlan{
			SessionID: req.SessionID,
			UseCase:   req.UseCase,
			Question:  req.Question,
			Model:     GreetingModel,
			Greeting:  greetingAnswer,
		}, nil
	}

	charter, err := s.constitutions.Latest(ctx, s.agentName)
	if err != nil {
		span.SetStatus(codes.Error, "constitution unavailable")
		span.RecordError(err)
		return nil, &ConfigError{Component: "constitution", Message: err.Error()}
	}

	rolling, err := s.summaries.Get(ctx, req.SessionID)
	if err != nil {
		slog.Warn("session summary unavailable, continuing without it",
			"session_id", req.SessionID, "error", err)
		rolling = ""
	}

	fragments, err := s.retriever.Retrieve(ctx, req.Question, retrieval.MatchCount)
	if err != nil {
		span.SetStatus(codes.Error, "retrieval failed")
		span.RecordError(err)
		return nil, &UpstreamError{Component: "retrieval", Err: err}
	}

	contextBlock, sources := assembleContext(rolling, fragments)
	res := s.resolver.Resolve(ctx, req.UseCase, req.Question, utf8.RuneCountInString(contextBlock))

	var meta struct {
		principles []string
		legalFocus []string
	}
	if charter.Metadata != nil {
		meta.principles = charter.Metadata.Principles
		meta.legalFocus = charter.Metadata.LegalFocus
	}
	userPrompt := prompt.Build(prompt.Inputs{
		Question:     req.Question,
		Constitution: charter.Text,
		Principles:   meta.principles,
		LegalFocus:   meta.legalFocus,
		Context:      contextBlock,
	})

	span.SetAttributes(
		attribute.String("ask.model", res.Model),
		attribute.Int("ask.sources", len(sources)),
	)
	return &TurnPlan{
		SessionID: req.SessionID,
		UseCase:   req.UseCase,
		Question:  req.Question,
		Model:     res.Model,
		Mode:      res.Mode,
		MaxTokens: res.MaxTokens,
		Messages: []datatypes.Message{
			{Role: datatypes.RoleSystem, Content: generationSystemPrompt},
			{Role: datatypes.RoleUser, Content: userPrompt},
		},
		Sources: sources,
	}, nil
}

// Standard runs one blocking turn end to end.
func (s *AskService) Standard(ctx context.Context, req *datatypes.AskRequest) (*datatypes.AskResponse, error) {
	ctx, span := askTracer.Start(ctx, "AskService.Standard")
	defer span.End()

	plan, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if plan.Greeting != "" {
		return datatypes.NewAskResponse(plan.SessionID, plan.Model, plan.Greeting, nil), nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.llm.Chat(genCtx, plan.Model, plan.Messages, llm.GenerationParams{
		Temperature: &defaultTemperature,
		MaxTokens:   &plan.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			span.SetStatus(codes.Error, "generation timeout")
			return nil, &TimeoutError{Operation: "generation", Limit: s.timeout}
		}
		span.SetStatus(codes.Error, "generation failed")
		return nil, &UpstreamError{Component: "llm", Err: err}
	}

	// An empty completion is a valid answer; only non-empty text feeds the
	// rolling summary.
	s.FinishTurn(ctx, plan, text)
	return datatypes.NewAskResponse(plan.SessionID, plan.Model, text, plan.Sources), nil
}

// FinishTurn does the post-answer bookkeeping: fold the turn into the
// rolling summary and record the interaction. The answer has already been
// delivered when this runs, so failures are logged, never returned.
func (s *AskService) FinishTurn(ctx context.Context, plan *TurnPlan, answer string) {
	if answer == "" || plan.Greeting != "" {
		return
	}

	addition := "Q: " + plan.Question + "\nA: " + truncateRunes(answer, datatypes.AnswerSummaryLimit)
	if err := s.summaries.Append(ctx, plan.SessionID, addition); err != nil {
		slog.Error("failed to persist session summary",
			"session_id", plan.SessionID, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			endpoint := observability.EndpointAskStandard
			if plan.Mode == routing.ModeStreaming {
				endpoint = observability.EndpointAskStream
			}
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
	}

	if s.interactions != nil {
		s.interactions.RecordAsync(plan.Question, answer, plan.Model, map[string]any{
			"session_id": plan.SessionID,
			"use_case":   plan.UseCase,
			"sources":    len(plan.Sources),
		})
	}
}

// assembleContext merges the rolling summary and retrieved fragments into
// the single context block the prompt builder budgets.
func assembleContext(rolling string, fragments []datatypes.Fragment) (string, []datatypes.Source) {
	parts := make([]string, 0, 1+len(fragments))
	if rolling != "" {
		parts = append(parts, "Resumen previo:\n"+rolling)
	}
	sources := make([]datatypes.Source, 0, len(fragments))
	for i, f := range fragments {
		parts = append(parts, fmt.Sprintf("Fuente #%d (%s):\n%s", i+1, f.Source, f.Content))
		sources = append(sources, datatypes.Source{Name: f.Source, Score: f.Score})
	}
	return strings.Join(parts, "\n\n"), sources
}

func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
