// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// =============================================================================
// Retention Sweeper
// =============================================================================

// Clock abstracts wall-clock time so retention cutoffs can be tested
// without sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	// DefaultRetention is how long an idle session summary is kept.
	// Summaries are conversational data, so they are not kept forever.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Hour

	// sweepTimeout bounds a single sweep cycle.
	sweepTimeout = 2 * time.Minute
)

// RetentionConfig tunes the sweeper. Zero values take the defaults above.
type RetentionConfig struct {
	// Retention is the maximum idle age of a session summary.
	Retention time.Duration

	// Interval is the delay between background sweep cycles.
	Interval time.Duration

	// Clock overrides wall-clock time. Tests inject a fixed clock;
	// production leaves this nil.
	Clock Clock
}

// RetentionSweeper deletes session summaries whose last update is older
// than the configured retention. It runs as a background loop started by
// Start and stopped by Stop.
//
// Deletion is age-based on the updated_at column, so an active session is
// never swept: every Append refreshes the timestamp.
type RetentionSweeper struct {
	sb        *supabase.Client
	retention time.Duration
	interval  time.Duration
	clock     Clock

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRetentionSweeper creates a sweeper over the session_summaries table.
func NewRetentionSweeper(sb *supabase.Client, cfg RetentionConfig) *RetentionSweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &RetentionSweeper{
		sb:        sb,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep loop. The first sweep runs after one
// full interval, not immediately, so service startup is never delayed by
// cleanup work.
func (r *RetentionSweeper) Start() {
	go r.run()
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
func (r *RetentionSweeper) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *RetentionSweeper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("session retention sweeper started",
		"retention", r.retention.String(),
		"interval", r.interval.String())

	for {
		select {
		case <-r.stop:
			slog.Info("session retention sweeper stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			deleted, err := r.SweepOnce(ctx)
			cancel()
			if err != nil {
				slog.Warn("session retention sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("session retention sweep completed", "deleted", deleted)
			}
		}
	}
}

// SweepOnce deletes all summaries older than the retention cutoff and
// returns how many rows were removed.
func (r *RetentionSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().UTC().Add(-r.retention)

	q := url.Values{}
	q.Set("updated_at", "lt."+cutoff.Format(time.RFC3339))

	var deleted []summaryRow
	if err := r.sb.Delete(ctx, "session_summaries", q, &deleted); err != nil {
		return 0, fmt.Errorf("sweep session summaries: %w", err)
	}
	return len(deleted), nil
}
