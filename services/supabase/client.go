// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package supabase implements a minimal PostgREST client for the project's
// Supabase backend: table reads, upserts, inserts, and RPC calls against
// /rest/v1. It carries the service-role key on every request and retries
// transient gateway failures with exponential backoff.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

// APIError represents a failed PostgREST request.
//
// # Description
//
// APIError distinguishes retryable upstream failures (502/503/504) from
// permanent ones (4xx) so callers can decide whether a retry makes sense.
// The client itself already retries retryable statuses; an APIError
// surfacing from a call means retries were exhausted or the failure was
// permanent.
type APIError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase request failed (status %d): %s", e.StatusCode, e.Message)
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// =============================================================================
// Client
// =============================================================================

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	baseBackoff    = 500 * time.Millisecond
)

// Client talks to one Supabase project's PostgREST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the given project URL (e.g.
// "https://xyzcompany.supabase.co") and service-role key.
func New(projectURL, apiKey string) (*Client, error) {
	if projectURL == "" {
		return nil, fmt.Errorf("supabase: project URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase: API key is required")
	}
	parsed, err := url.Parse(projectURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("supabase: invalid project URL %q", projectURL)
	}
	return &Client{
		baseURL:    strings.TrimRight(projectURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Select runs GET /rest/v1/{table}?{query} and decodes the JSON array
// response into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, nil, "", out)
}

// Upsert runs POST /rest/v1/{table} with merge-duplicates resolution on the
// given conflict column. When out is non-nil the representation is requested
// and decoded into it.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", c.baseURL, table, url.QueryEscape(onConflict))
	prefer := "resolution=merge-duplicates"
	if out != nil {
		prefer += ",return=representation"
	}
	return c.do(ctx, http.MethodPost, endpoint, payload, prefer, out)
}

// Insert runs a plain POST /rest/v1/{table}.
func (c *Client) Insert(ctx context.Context, table string, payload any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	return c.do(ctx, http.MethodPost, endpoint, payload, "", nil)
}

// Delete runs DELETE /rest/v1/{table}?{query}. The query filters select the
// rows to remove; a filter is required so a coding mistake cannot wipe a
// whole table. When out is non-nil the deleted rows are requested and
// decoded into it.
func (c *Client) Delete(ctx context.Context, table string, query url.Values, out any) error {
	if len(query) == 0 {
		return fmt.Errorf("supabase: delete on %s requires a filter", table)
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, query.Encode())
	prefer := ""
	if out != nil {
		prefer = "return=representation"
	}
	return c.do(ctx, http.MethodDelete, endpoint, nil, prefer, out)
}

// RPC runs POST /rest/v1/rpc/{fn} with the given arguments and decodes the
// response into out.
func (c *Client) RPC(ctx context.Context, fn string, args any, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)
	return c.do(ctx, http.MethodPost, endpoint, args, "", out)
}

// do executes one request with retry on transient upstream statuses.
//
// Retries use exponential backoff (500ms, 1s, 2s) and respect context
// cancellation between attempts.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any, prefer string, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("supabase: encode payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<(attempt-1))
			slog.Debug("retrying supabase request",
				"endpoint", endpoint,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.attempt(ctx, method, endpoint, body, prefer, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable {
			return err
		}
	}
	return fmt.Errorf("supabase: retries exhausted: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, body []byte, prefer string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("supabase: create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
			Retryable:  isRetryableStatus(resp.StatusCode),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("supabase: decode response: %w", err)
	}
	return nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
