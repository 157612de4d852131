// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import "strings"

// modelAliases maps retired or renamed model names to their current
// equivalents. The registry table is edited by operators and routinely
// lags provider deprecations; normalization keeps stale entries working.
var modelAliases = map[string]string{
	"gpt-4.1-turbo": "gpt-4o",
	"gpt-4.1":       "gpt-4o",
	"gpt-4.1-mini":  "gpt-4o-mini",
	"gpt-4-turbo":   "gpt-4o",
	"gpt-4":         "gpt-4o",
	"gpt-o1-mini":   "o3-mini",
	"o1-mini":       "o3-mini",
}

// NormalizeModel maps a possibly-retired model name to its current
// equivalent. Lookup is case-insensitive; unknown names pass through
// unchanged. Applied to every resolved model, whatever its origin.
func NormalizeModel(model string) string {
	if replacement, ok := modelAliases[strings.ToLower(strings.TrimSpace(model))]; ok {
		return replacement
	}
	return model
}
