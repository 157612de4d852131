// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics. Implementations
// handle the SSE wire format (event: type\ndata: json\n\n) internally.
//
// The event protocol is:
//   - started: {"status":"started","model":"..."} — once, before any chunk
//   - chunk:   {"chunk":"..."} — zero or more content deltas
//   - done:    {"done":true} — terminal, successful completion
//   - error:   {"error":"..."} — terminal, failure
//
// Exactly one terminal event (done or error) is written per stream. Writes
// after the terminal event are rejected.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Streaming handlers emit keepalives and content from different goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type SSEWriter interface {
	// WriteStarted announces the stream and the model that will answer.
	WriteStarted(model string) error

	// WriteChunk writes a content delta. Chunks may be partial words.
	WriteChunk(content string) error

	// WriteError writes the terminal error event. The message must already
	// be sanitized; internal details never reach the client.
	WriteError(errMsg string) error

	// WriteDone writes the terminal success event.
	WriteDone() error

	// WriteKeepAlive sends an SSE comment line (": ping") to keep the
	// connection alive through load balancer idle timeouts. Comments are
	// ignored by clients and are allowed at any point before the terminal
	// event.
	WriteKeepAlive() error

	// Closed reports whether a terminal event has been written.
	Closed() bool
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// # Description
//
// Wraps an http.ResponseWriter to emit SSE-formatted events. Each event is
// written in the format:
//
//	event: {type}
//	data: {json}
//
// Once a terminal event (done or error) has been written, all further writes
// return an error. This guarantees the client sees exactly one terminal
// event regardless of how the handler's goroutines race.
//
// # Thread Safety
//
// Thread-safe via mutex.
//
// # Limitations
//
//   - Cannot be reused across requests
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// errStreamClosed is returned for writes after the terminal event.
var errStreamClosed = fmt.Errorf("sse stream already closed")

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates a new SSEWriter for the given ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - SSEWriter: Ready to write SSE events.
//   - error: Non-nil if the ResponseWriter doesn't support flushing.
//
// # Examples
//
//	SetSSEHeaders(w)
//	writer, err := NewSSEWriter(w)
//	if err != nil {
//	    http.Error(w, "Streaming not supported", http.StatusInternalServerError)
//	    return
//	}
//	writer.WriteStarted("gpt-4o-mini")
//	writer.WriteChunk("Hola")
//	writer.WriteDone()
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// writeEvent serializes payload and writes one SSE event. terminal marks the
// stream closed so that no later event can follow a done or error.
func (w *sseWriter) writeEvent(eventType string, payload any, terminal bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errStreamClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	if terminal {
		w.closed = true
	}

	w.flusher.Flush()
	return nil
}

// WriteStarted announces the stream and the model that will answer.
func (w *sseWriter) WriteStarted(model string) error {
	return w.writeEvent("started", map[string]string{
		"status": "started",
		"model":  model,
	}, false)
}

// WriteChunk writes a content delta event.
//
// # Limitations
//
//   - Each call flushes immediately (no batching).
func (w *sseWriter) WriteChunk(content string) error {
	return w.writeEvent("chunk", map[string]string{
		"chunk": content,
	}, false)
}

// WriteError writes the terminal error event.
//
// # Assumptions
//
//   - The message is sanitized; no internal details reach the client.
func (w *sseWriter) WriteError(errMsg string) error {
	return w.writeEvent("error", map[string]string{
		"error": errMsg,
	}, true)
}

// WriteDone writes the terminal success event.
func (w *sseWriter) WriteDone() error {
	return w.writeEvent("done", map[string]bool{
		"done": true,
	}, true)
}

// WriteKeepAlive sends a comment line to keep the connection alive.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errStreamClosed
	}

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// Closed reports whether a terminal event has been written.
func (w *sseWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// # Description
//
// Sets the required headers for Server-Sent Events:
//   - Content-Type: text/event-stream
//   - Cache-Control: no-cache
//   - Connection: keep-alive
//   - X-Accel-Buffering: no (disables nginx buffering)
//
// Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
