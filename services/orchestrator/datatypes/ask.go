// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains request and response types for the assistant chat
// endpoints (streaming and standard). For the legal-answer types, see
// legal.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQuestionBytes is the maximum size of a single question payload.
	// Byte length (not rune count) to bound memory per request.
	MaxQuestionBytes = 32 * 1024 // 32KB

	// AnswerSummaryLimit is the maximum number of runes of an answer that
	// are folded back into the rolling session summary.
	AnswerSummaryLimit = 1200
)

// Known use cases for model resolution. Unknown values are accepted and
// resolved heuristically.
const (
	UseCaseChat             = "chat"
	UseCaseFastInteractions = "fast_interactions"
	UseCaseCompliance       = "compliance"
	UseCaseDocuments        = "documents"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// askValidate is the validator instance for ask datatypes.
// Initialized in init() with custom validators.
var askValidate *validator.Validate

func init() {
	askValidate = validator.New()

	_ = askValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxQuestionBytes. Checks byte length to keep large payloads bounded
// regardless of encoding.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Ask Request Types
// =============================================================================

// AskRequest represents an assistant chat turn.
//
// # Description
//
// AskRequest carries one user question plus the session identity used to
// thread the rolling conversation summary. It is the request body for both
// POST /v1/ask/standard and POST /v1/ask/stream.
//
// # Fields
//
//   - Question: Required. The user's question, at most 32KB.
//   - SessionID: Optional. Conversation identity for the rolling summary.
//     Generated server-side when absent.
//   - UseCase: Optional. Model-registry use case ("chat",
//     "fast_interactions", "compliance", "documents"). Defaults to "chat".
//
// # Examples
//
//	req := AskRequest{
//	    Question:  "¿Qué exige el DS 44 sobre matriz de riesgos?",
//	    SessionID: "f47ac10b-58cc-4372-a567-0e02b2c3d479",
//	}
type AskRequest struct {
	Question  string `json:"question" validate:"required,maxbytes"`
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
	UseCase   string `json:"useCase,omitempty" validate:"omitempty,max=64"`
}

// Validate checks the request against its validation rules.
func (r *AskRequest) Validate() error {
	return askValidate.Struct(r)
}

// EnsureDefaults fills the optional fields that the rest of the pipeline
// relies on: a generated session id and the default use case.
func (r *AskRequest) EnsureDefaults() {
	if r.SessionID == "" {
		r.SessionID = uuid.New().String()
	}
	if r.UseCase == "" {
		r.UseCase = UseCaseChat
	}
}

// =============================================================================
// Ask Response Types
// =============================================================================

// AskResponse is the non-streaming answer for POST /v1/ask/standard.
type AskResponse struct {
	RequestID string   `json:"requestId"`
	Timestamp int64    `json:"timestamp"`
	SessionID string   `json:"sessionId"`
	Model     string   `json:"model"`
	Text      string   `json:"text"`
	Sources   []Source `json:"sources,omitempty"`
}

// Source identifies a corpus fragment that contributed context to an answer.
type Source struct {
	Name  string  `json:"name"`
	Score float64 `json:"score,omitempty"`
}

// NewAskResponse stamps a response with a fresh request id and UTC
// millisecond timestamp, mirroring how every outbound payload in this
// service is made traceable.
func NewAskResponse(sessionID, model, text string, sources []Source) *AskResponse {
	now := time.Now().UTC()
	return &AskResponse{
		RequestID: uuid.New().String(),
		Timestamp: now.UnixMilli(),
		SessionID: sessionID,
		Model:     model,
		Text:      text,
		Sources:   sources,
	}
}
