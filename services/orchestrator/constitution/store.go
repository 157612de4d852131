// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package constitution persists the versioned behavioral charter that
// frames every A.R.I.A. prompt.
package constitution

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

const table = "constituciones_agente"

type constitutionRow struct {
	AgentName string                          `json:"nombre_agente"`
	Text      string                          `json:"constitucion"`
	Metadata  *datatypes.ConstitutionMetadata `json:"metadata,omitempty"`
	UpdatedAt string                          `json:"fecha_actualizacion"`
}

// Store reads and replaces agent constitutions.
type Store interface {
	Latest(ctx context.Context, agentName string) (*datatypes.Constitution, error)
	Upsert(ctx context.Context, c *datatypes.Constitution) error
}

// SupabaseStore keeps constitutions in the constituciones_agente table,
// one row per agent, upserted on nombre_agente. Latest orders by
// fecha_actualizacion so a manual extra row can never shadow a newer
// charter.
type SupabaseStore struct {
	sb *supabase.Client
}

// NewSupabaseStore creates a store backed by the given client.
func NewSupabaseStore(sb *supabase.Client) *SupabaseStore {
	return &SupabaseStore{sb: sb}
}

// Latest returns the most recently updated constitution for the agent.
// A missing row is an error: the service cannot frame prompts without a
// charter.
func (s *SupabaseStore) Latest(ctx context.Context, agentName string) (*datatypes.Constitution, error) {
	q := url.Values{}
	q.Set("select", "nombre_agente,constitucion,metadata,fecha_actualizacion")
	q.Set("nombre_agente", "eq."+agentName)
	q.Set("order", "fecha_actualizacion.desc")
	q.Set("limit", "1")

	var rows []constitutionRow
	if err := s.sb.Select(ctx, table, q, &rows); err != nil {
		return nil, fmt.Errorf("load constitution: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no constitution found for agent %q", agentName)
	}

	row := rows[0]
	updated, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		// Tolerate timestamps without offset that older writers produced.
		updated, _ = time.Parse("2006-01-02T15:04:05", row.UpdatedAt)
	}
	return &datatypes.Constitution{
		AgentName: row.AgentName,
		Text:      row.Text,
		Metadata:  row.Metadata,
		UpdatedAt: updated,
	}, nil
}

// Upsert replaces the agent's constitution, stamping a fresh UTC
// timestamp. The caller's UpdatedAt is ignored.
func (s *SupabaseStore) Upsert(ctx context.Context, c *datatypes.Constitution) error {
	payload := constitutionRow{
		AgentName: c.AgentName,
		Text:      c.Text,
		Metadata:  c.Metadata,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.sb.Upsert(ctx, table, "nombre_agente", payload, nil); err != nil {
		return fmt.Errorf("persist constitution: %w", err)
	}
	return nil
}

var _ Store = (*SupabaseStore)(nil)
