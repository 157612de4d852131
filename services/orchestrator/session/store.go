// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists the capped rolling summary that threads
// multi-turn conversations through otherwise stateless requests.
package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"sync"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// SummaryMaxChars caps the rolling summary. When an append overflows, the
// oldest content falls off the front: the tail is always the freshest.
const SummaryMaxChars = 4000

// lockStripes bounds the per-session serialization table.
const lockStripes = 64

// Store reads and extends rolling session summaries.
type Store interface {
	Get(ctx context.Context, sessionID string) (string, error)
	Append(ctx context.Context, sessionID, addition string) error
}

// CompactAppend merges addition onto prev with a newline and keeps only the
// trailing max runes. Pure; exported for reuse by anything that folds text
// into a bounded window.
func CompactAppend(prev, addition string, max int) string {
	merged := addition
	if prev != "" {
		merged = prev + "\n" + addition
	}
	runes := []rune(merged)
	if len(runes) <= max {
		return merged
	}
	return string(runes[len(runes)-max:])
}

// =============================================================================
// Supabase-backed store
// =============================================================================

type summaryRow struct {
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupabaseStore persists summaries in the session_summaries table, one row
// per session, upserted on session_id.
//
// Appends within this process are serialized per session through striped
// locks, so two concurrent turns on one session cannot drop each other's
// read-modify-write. Writers in other processes remain last-write-wins.
type SupabaseStore struct {
	sb    *supabase.Client
	locks [lockStripes]sync.Mutex
}

// NewSupabaseStore creates a store backed by the given client.
func NewSupabaseStore(sb *supabase.Client) *SupabaseStore {
	return &SupabaseStore{sb: sb}
}

func (s *SupabaseStore) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Get returns the current summary, or "" when the session has none yet.
func (s *SupabaseStore) Get(ctx context.Context, sessionID string) (string, error) {
	q := url.Values{}
	q.Set("select", "summary")
	q.Set("session_id", "eq."+sessionID)
	q.Set("limit", "1")

	var rows []summaryRow
	if err := s.sb.Select(ctx, "session_summaries", q, &rows); err != nil {
		return "", fmt.Errorf("load session summary: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Summary, nil
}

// Append folds addition into the stored summary under the cap.
func (s *SupabaseStore) Append(ctx context.Context, sessionID, addition string) error {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	prev, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	next := CompactAppend(prev, addition, SummaryMaxChars)

	payload := summaryRow{SessionID: sessionID, Summary: next, UpdatedAt: time.Now().UTC()}
	if err := s.sb.Upsert(ctx, "session_summaries", "session_id", payload, nil); err != nil {
		return fmt.Errorf("persist session summary: %w", err)
	}
	return nil
}

var _ Store = (*SupabaseStore)(nil)
