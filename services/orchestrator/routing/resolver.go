// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Heuristic boundaries: a question at or past either threshold is no
// longer "fast".
const (
	fastQuestionLimit = 180
	fastContextLimit  = 4000
)

// Default models when no registry entry overrides the choice.
const (
	fastModel     = "gpt-4o-mini"
	deepModel     = "gpt-4o"
	fastMaxTokens = 1024
	deepMaxTokens = 2048
)

// Keyword classes that force the deep model regardless of length. The
// vocabulary is Spanish because that is what Preventi Flow users write.
var (
	documentKeywords = regexp.MustCompile(`(?i)(documento|protocolo|plantilla|informe|matriz|plan de emergencia|anexo)`)
	deepKeywords     = regexp.MustCompile(`(?i)(análisis|comparativo|jurisprudencia|derogación|concordancias|profund|extensivo)`)
)

// Resolution is the outcome of model selection for one request.
type Resolution struct {
	Model     string
	Mode      Mode
	MaxTokens int
	// FromRegistry records whether a registry entry decided the model
	// (as opposed to the heuristic).
	FromRegistry bool
}

// Resolver picks the model for a request: registry entry first, heuristic
// fallback always available.
//
// # Description
//
// Resolve is deterministic: identical question, context size and registry
// state always produce the same Resolution. A registry fetch failure is
// deliberately silent (warn log only) so a broken config table can never
// take request serving down.
type Resolver struct {
	registry Registry
	agentID  string
}

// NewResolver creates a Resolver reading the given agent's registry row.
func NewResolver(registry Registry, agentID string) *Resolver {
	return &Resolver{registry: registry, agentID: agentID}
}

// Resolve picks the model for one request.
//
// Precedence: a non-empty registry entry for the use case wins verbatim;
// otherwise the length/keyword heuristic decides. The resolved name is
// normalized in both branches.
func (r *Resolver) Resolve(ctx context.Context, useCase, question string, contextChars int) Resolution {
	if r.registry != nil {
		cfg, err := r.registry.Fetch(ctx, r.agentID)
		if err != nil {
			slog.Warn("model registry unavailable, using heuristic",
				"agent", r.agentID, "error", err)
		} else if entry, ok := cfg[useCase]; ok && entry.Model != "" {
			mode := entry.Mode
			if mode == "" {
				mode = ModeStandard
			}
			return Resolution{
				Model:        NormalizeModel(entry.Model),
				Mode:         mode,
				MaxTokens:    maxTokensForUseCase(useCase),
				FromRegistry: true,
			}
		}
	}
	return heuristic(useCase, question, contextChars)
}

// heuristic classifies the request as fast or deep from question length,
// context size and keyword classes.
func heuristic(useCase, question string, contextChars int) Resolution {
	q := strings.TrimSpace(question)
	isFast := utf8.RuneCountInString(q) < fastQuestionLimit &&
		contextChars < fastContextLimit &&
		!documentKeywords.MatchString(q) &&
		!deepKeywords.MatchString(q)

	res := Resolution{Mode: ModeStandard, MaxTokens: maxTokensForUseCase(useCase)}
	if isFast {
		res.Model = NormalizeModel(fastModel)
	} else {
		res.Model = NormalizeModel(deepModel)
	}
	return res
}

// maxTokensForUseCase keeps interactive use cases short and lets document
// and compliance work run longer.
func maxTokensForUseCase(useCase string) int {
	switch useCase {
	case "chat", "fast_interactions":
		return fastMaxTokens
	default:
		return deepMaxTokens
	}
}
