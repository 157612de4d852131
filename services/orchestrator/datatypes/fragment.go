// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Fragment is one retrieved corpus excerpt.
//
// Score carries the similarity for vector retrieval and is zero for keyword
// matches. Source names the norm or document the excerpt came from.
type Fragment struct {
	ID      string         `json:"id,omitempty"`
	Content string         `json:"content"`
	Source  string         `json:"source"`
	Score   float64        `json:"score,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}
