// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// DefaultAgentName is the canonical agent identity used across the
// constitution and model-registry tables.
const DefaultAgentName = "A.R.I.A."

// ConstitutionMetadata carries the structured guidance that accompanies a
// constitution: governing principles and the legal domains the agent should
// weigh.
type ConstitutionMetadata struct {
	Principles []string `json:"principios,omitempty" yaml:"principios"`
	LegalFocus []string `json:"enfoque_legal,omitempty" yaml:"enfoque_legal"`
}

// Constitution is one versioned behavioral charter for an agent. Rows are
// keyed by agent name; UpdatedAt orders revisions.
type Constitution struct {
	AgentName string                `json:"nombre_agente"`
	Text      string                `json:"constitucion"`
	Metadata  *ConstitutionMetadata `json:"metadata,omitempty"`
	UpdatedAt time.Time             `json:"fecha_actualizacion"`
}

// ConstitutionUpsertRequest is the admin payload for replacing an agent's
// constitution. The agent name defaults to DefaultAgentName.
type ConstitutionUpsertRequest struct {
	AgentName string                `json:"agentName,omitempty" validate:"omitempty,max=64"`
	Text      string                `json:"constitution" validate:"required"`
	Metadata  *ConstitutionMetadata `json:"metadata,omitempty"`
}

// Validate checks the request against its validation rules.
func (r *ConstitutionUpsertRequest) Validate() error {
	return askValidate.Struct(r)
}

// EnsureDefaults fills the agent name when the caller omitted it.
func (r *ConstitutionUpsertRequest) EnsureDefaults() {
	if r.AgentName == "" {
		r.AgentName = DefaultAgentName
	}
}
