// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("preventiflow.aria.llm")

// Provider names used for registration and dispatch.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

// NotConfiguredError is returned when a resolved model maps to a provider
// that has no configured client (usually a missing API key at startup).
type NotConfiguredError struct {
	Provider string
	Model    string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("provider %q for model %q is not configured", e.Provider, e.Model)
}

// IsNotConfiguredError checks if an error is a NotConfiguredError.
func IsNotConfiguredError(err error) bool {
	var nce *NotConfiguredError
	return errors.As(err, &nce)
}

// ProviderRouter dispatches chat calls to the provider that serves the
// requested model. It implements LLMClient itself so the orchestrator layer
// never branches on provider identity.
//
// # Thread Safety
//
// ProviderRouter is safe for concurrent use.
type ProviderRouter struct {
	mu        sync.RWMutex
	providers map[string]LLMClient
}

// NewProviderRouter creates an empty router. Register at least one provider
// before serving traffic.
func NewProviderRouter() *ProviderRouter {
	return &ProviderRouter{providers: make(map[string]LLMClient)}
}

// Register installs a provider client under its name, replacing any
// previous registration.
func (r *ProviderRouter) Register(provider string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider] = client
}

// Providers returns the names of all registered providers.
func (r *ProviderRouter) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// ProviderForModel maps a model name to the provider that serves it.
// Unknown names default to OpenAI, matching the registry's bias toward
// GPT-family models.
func ProviderForModel(model string) string {
	name := strings.ToLower(strings.TrimPrefix(model, "models/"))
	switch {
	case strings.HasPrefix(name, "deepseek"):
		return ProviderDeepSeek
	case strings.HasPrefix(name, "gemini"):
		return ProviderGemini
	default:
		return ProviderOpenAI
	}
}

func (r *ProviderRouter) clientFor(model string) (LLMClient, string, error) {
	provider := ProviderForModel(model)
	r.mu.RLock()
	client, ok := r.providers[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, provider, &NotConfiguredError{Provider: provider, Model: model}
	}
	return client, provider, nil
}

// Chat implements the LLMClient interface.
func (r *ProviderRouter) Chat(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "ProviderRouter.Chat")
	defer span.End()

	client, provider, err := r.clientFor(model)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	return client.Chat(ctx, model, messages, params)
}

// ChatStream implements the LLMClient interface.
func (r *ProviderRouter) ChatStream(ctx context.Context, model string, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {
	ctx, span := tracer.Start(ctx, "ProviderRouter.ChatStream")
	defer span.End()

	client, provider, err := r.clientFor(model)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	return client.ChatStream(ctx, model, messages, params, callback)
}

var _ LLMClient = (*ProviderRouter)(nil)
