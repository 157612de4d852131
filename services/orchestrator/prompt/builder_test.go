// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateUnchangedWhenFits(t *testing.T) {
	t.Parallel()

	text := "análisis breve"
	assert.Equal(t, text, Truncate(text, utf8.RuneCountInString(text)))
	assert.Equal(t, text, Truncate(text, 1000))
}

func TestTruncateAppendsMarkerWithinBudget(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("á", 500)
	got := Truncate(text, 100)

	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100)
	// The kept prefix is the original text, not a re-encoding of it.
	assert.True(t, strings.HasPrefix(text, strings.TrimSuffix(got, TruncationMarker)))
}

func TestTruncateIdempotent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("normativa chilena ", 400)
	for _, max := range []int{3, 10, 25, 100, 3000, 6000} {
		once := Truncate(long, max)
		twice := Truncate(once, max)
		assert.Equal(t, once, twice, "max=%d", max)
	}
}

func TestBuildSectionOrder(t *testing.T) {
	t.Parallel()

	got := Build(Inputs{
		Question:     "¿Qué exige el DS 44?",
		Constitution: "Actúa conforme a la normativa vigente.",
		Principles:   []string{"precisión", "trazabilidad"},
		LegalFocus:   []string{"seguridad laboral"},
		Context:      "Resumen previo:\nQ: hola\nA: buenos días",
	})

	sections := strings.Split(got, "\n\n")
	require.Len(t, sections, 7)
	assert.Contains(t, sections[0], "Eres el asistente A.R.I.A.")
	assert.Equal(t, "Actúa conforme a la normativa vigente.", sections[1])
	assert.Equal(t, "Principios: precisión, trazabilidad", sections[2])
	assert.Equal(t, "Enfoque legal: seguridad laboral", sections[3])
	assert.True(t, strings.HasPrefix(sections[4], "Contexto relevante:\n"))
	assert.True(t, strings.HasPrefix(sections[5], "Pregunta del usuario:\n¿Qué exige el DS 44?"))
	assert.Contains(t, sections[6], "BCN/Diario Oficial")
}

func TestBuildOmitsEmptySections(t *testing.T) {
	t.Parallel()

	got := Build(Inputs{Question: "hola"})

	assert.NotContains(t, got, "Contexto relevante:")
	assert.NotContains(t, got, "Principios:")
	assert.NotContains(t, got, "Enfoque legal:")
	assert.NotContains(t, got, "\n\n\n")
	assert.Contains(t, got, "Pregunta del usuario:\nhola")
}

func TestBuildDeterministic(t *testing.T) {
	t.Parallel()

	in := Inputs{
		Question:     "pregunta",
		Constitution: strings.Repeat("c", 7000),
		Context:      strings.Repeat("x", 4000),
	}
	first := Build(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Build(in))
	}
}

func TestBuildEnforcesSectionBudgets(t *testing.T) {
	t.Parallel()

	got := Build(Inputs{
		Question:     "p",
		Constitution: strings.Repeat("c", ConstitutionBudget+500),
		Context:      strings.Repeat("x", ContextBudget+500),
	})

	sections := strings.Split(got, "\n\n")
	require.Len(t, sections, 4)
	assert.LessOrEqual(t, utf8.RuneCountInString(sections[1]), ConstitutionBudget)
	contextBody := strings.TrimPrefix(sections[2], "Contexto relevante:\n")
	assert.LessOrEqual(t, utf8.RuneCountInString(contextBody), ContextBudget)
	assert.True(t, strings.HasSuffix(contextBody, TruncationMarker))
}
