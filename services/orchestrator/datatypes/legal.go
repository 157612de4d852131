// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// Transparency values reported on legal answers. They describe whether the
// answer was grounded in retrieved corpus fragments or produced from general
// knowledge only.
const (
	TransparencyFromCorpus        = "from_supabase"
	TransparencyNoInternalContext = "no_internal_context"
)

// LegalRequest is the body for POST /v1/legal/standard.
type LegalRequest struct {
	Query string `json:"query" validate:"required,maxbytes"`
}

// Validate checks the request against its validation rules.
func (r *LegalRequest) Validate() error {
	return askValidate.Struct(r)
}

// LegalResponse is the verified legal answer.
//
// Verified is false when the consistency check could not run; the text is
// then the unverified draft. Transparency is computed from retrieval results
// and is independent of the verifier outcome.
type LegalResponse struct {
	RequestID    string     `json:"requestId"`
	Timestamp    int64      `json:"timestamp"`
	Text         string     `json:"text"`
	UsedContext  []Fragment `json:"usedContext"`
	Transparency string     `json:"transparency"`
	Verified     bool       `json:"verified"`
}

// NewLegalResponse stamps a legal answer with request id and timestamp.
// Transparency is derived from whether any fragments grounded the answer.
func NewLegalResponse(text string, used []Fragment, verified bool) *LegalResponse {
	transparency := TransparencyNoInternalContext
	if len(used) > 0 {
		transparency = TransparencyFromCorpus
	}
	return &LegalResponse{
		RequestID:    uuid.New().String(),
		Timestamp:    time.Now().UTC().UnixMilli(),
		Text:         text,
		UsedContext:  used,
		Transparency: transparency,
		Verified:     verified,
	}
}
