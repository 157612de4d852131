// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routing decides which model serves a request: a runtime-editable
// registry keyed by use case, with a deterministic heuristic fallback and
// alias normalization for retired model names.
package routing

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// Mode describes how a registry entry expects to be served.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModeStandard  Mode = "standard"
)

// Entry is one registry binding: a use case resolved to a concrete model.
type Entry struct {
	Model       string `json:"model"`
	Mode        Mode   `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

// Config is the full registry payload, keyed by use case
// ("chat", "fast_interactions", "compliance", "documents").
type Config map[string]Entry

// Registry provides the current model configuration for an agent.
type Registry interface {
	Fetch(ctx context.Context, agentID string) (Config, error)
}

// =============================================================================
// Supabase-backed registry
// =============================================================================

// cacheTTL bounds how stale a served registry snapshot can be. Operators
// editing model_config see the change within this window, or immediately
// after POST /v1/models/refresh.
const cacheTTL = 30 * time.Second

type modelConfigRow struct {
	ID     string `json:"id"`
	Config Config `json:"config"`
}

// SupabaseRegistry reads the model_config table and caches the result
// briefly. Safe for concurrent use.
type SupabaseRegistry struct {
	sb *supabase.Client

	mu        sync.RWMutex
	cached    map[string]Config
	fetchedAt map[string]time.Time
}

// NewSupabaseRegistry creates a registry backed by the given client.
func NewSupabaseRegistry(sb *supabase.Client) *SupabaseRegistry {
	return &SupabaseRegistry{
		sb:        sb,
		cached:    make(map[string]Config),
		fetchedAt: make(map[string]time.Time),
	}
}

// Fetch implements the Registry interface.
func (r *SupabaseRegistry) Fetch(ctx context.Context, agentID string) (Config, error) {
	r.mu.RLock()
	cfg, ok := r.cached[agentID]
	fresh := ok && time.Since(r.fetchedAt[agentID]) < cacheTTL
	r.mu.RUnlock()
	if fresh {
		return cfg, nil
	}

	q := url.Values{}
	q.Set("select", "id,config")
	q.Set("id", "eq."+agentID)
	q.Set("limit", "1")

	var rows []modelConfigRow
	if err := r.sb.Select(ctx, "model_config", q, &rows); err != nil {
		return nil, fmt.Errorf("fetch model config: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no model config found for agent %q", agentID)
	}

	r.mu.Lock()
	r.cached[agentID] = rows[0].Config
	r.fetchedAt[agentID] = time.Now()
	r.mu.Unlock()

	return rows[0].Config, nil
}

// Invalidate drops the cached snapshot so the next Fetch hits the table.
func (r *SupabaseRegistry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = make(map[string]Config)
	r.fetchedAt = make(map[string]time.Time)
}

var _ Registry = (*SupabaseRegistry)(nil)
