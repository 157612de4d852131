// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Error Types
// =============================================================================

// ConfigError reports missing or invalid deployment configuration: absent
// API keys, a missing constitution row, an unconfigured provider. These are
// operator problems and map to 500 with an explicit message rather than a
// degraded answer.
type ConfigError struct {
	Component string
	Message   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// UpstreamError reports a dependency failure: provider API down, Supabase
// unreachable, embedding service erroring. Maps to 502.
type UpstreamError struct {
	Component string
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Component, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstreamError checks if an error is an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// TimeoutError reports that generation exceeded its deadline. Kept distinct
// from UpstreamError so callers and dashboards can tell slowness from
// breakage. Maps to 504.
type TimeoutError struct {
	Operation string
	Limit     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Limit)
}

// IsTimeoutError checks if an error is a TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
