// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// InteractionLog records completed turns in the interacciones table for
// audit and product analytics. Writes are fire-and-forget: the answer is
// never delayed or failed over bookkeeping.
type InteractionLog struct {
	sb      *supabase.Client
	timeout time.Duration
}

type interactionRow struct {
	Question string         `json:"pregunta"`
	Answer   string         `json:"respuesta"`
	Model    string         `json:"modelo"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewInteractionLog creates a log backed by the given client.
func NewInteractionLog(sb *supabase.Client) *InteractionLog {
	return &InteractionLog{sb: sb, timeout: 10 * time.Second}
}

// RecordAsync inserts the interaction in the background. Uses its own
// context so an already-finished request cannot cancel the write.
func (l *InteractionLog) RecordAsync(question, answer, model string, metadata map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		row := interactionRow{Question: question, Answer: answer, Model: model, Metadata: metadata}
		if err := l.sb.Insert(ctx, "interacciones", row); err != nil {
			slog.Error("failed to record interaction", "model", model, "error", err)
		}
	}()
}
