// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package prompt assembles the final A.R.I.A. prompt from the agent
// constitution, conversational context and the user question. Everything in
// this package is pure: no I/O, no clocks, deterministic output for
// identical input.
package prompt

import "strings"

// Character budgets for prompt sections. Budgets count runes so accented
// Spanish text is measured the same as ASCII.
const (
	// ConstitutionBudget caps the behavioral charter section.
	ConstitutionBudget = 6000
	// ContextBudget caps the combined conversational/retrieved context.
	ContextBudget = 3000

	// truncationReserve is headroom taken off the cut so the marker plus
	// slack never pushes a truncated section over its budget.
	truncationReserve = 20

	// TruncationMarker terminates any truncated section.
	TruncationMarker = "\n[...]"
)

// Fixed prompt framing. The assistant persona and the citation directive
// are part of the product contract with the legal team; do not reword
// without them.
const (
	roleFraming = "Eres el asistente A.R.I.A. Responde en español, de forma profesional, precisa y accionable."
	closing     = "Responde citando fuentes normativas chilenas (BCN/Diario Oficial) cuando corresponda."
)

// Inputs carries the sections Build assembles. Empty fields are omitted
// from the prompt entirely.
type Inputs struct {
	Question     string
	Constitution string
	Principles   []string
	LegalFocus   []string
	Context      string
}

// Truncate returns text unchanged when it fits within max runes; otherwise
// it keeps the first max-20 runes and appends the truncation marker.
//
// Truncate is idempotent: applying it twice with the same budget yields the
// same result, so already-truncated text is never mangled further.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := max - truncationReserve
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + TruncationMarker
}

// Build assembles the prompt in fixed section order: role framing,
// constitution, metadata lines, context block, user question, citation
// closing. Sections are joined by blank lines; absent sections leave no
// gap.
func Build(in Inputs) string {
	parts := make([]string, 0, 6)
	parts = append(parts, roleFraming)

	if in.Constitution != "" {
		parts = append(parts, Truncate(in.Constitution, ConstitutionBudget))
	}
	if len(in.Principles) > 0 {
		parts = append(parts, "Principios: "+strings.Join(in.Principles, ", "))
	}
	if len(in.LegalFocus) > 0 {
		parts = append(parts, "Enfoque legal: "+strings.Join(in.LegalFocus, ", "))
	}
	if in.Context != "" {
		parts = append(parts, "Contexto relevante:\n"+Truncate(in.Context, ContextBudget))
	}
	parts = append(parts, "Pregunta del usuario:\n"+in.Question)
	parts = append(parts, closing)

	return strings.Join(parts, "\n\n")
}
