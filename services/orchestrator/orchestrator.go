// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator provides the core A.R.I.A. service.
//
// This package contains the main Orchestrator type that coordinates all
// components of the service: HTTP routing, provider clients, Supabase
// persistence, retrieval, and observability infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 8080}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/preventiflow/aria-orchestrator/services/llm"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/constitution"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/datatypes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/middleware"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/observability"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/retrieval"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routes"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/routing"
	orchservices "github.com/preventiflow/aria-orchestrator/services/orchestrator/services"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/session"
	"github.com/preventiflow/aria-orchestrator/services/supabase"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Description
//
// Service abstracts the orchestrator lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, a YAML config file, or
// programmatically for testing. Zero values use defaults applied by New().
//
// # Examples
//
//	// Minimal config (uses all defaults plus env vars for credentials)
//	cfg := Config{}
//
//	// Full configuration
//	cfg := Config{
//	    Port:         8080,
//	    SupabaseURL:  "https://project.supabase.co",
//	    OTelEndpoint: "otel-collector:4317",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 8080
	Port int

	// SupabaseURL is the Supabase project URL.
	// Default: SUPABASE_URL environment variable.
	SupabaseURL string

	// SupabaseKey is the Supabase service-role key.
	// Default: SUPABASE_SERVICE_KEY env var, falling back to
	// /run/secrets/supabase_service_key.
	SupabaseKey string

	// AgentName is the constitution identity. Default: "A.R.I.A."
	AgentName string

	// AgentID is the model_config registry row id. Default: "aria"
	AgentID string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "otel-collector:4317"
	OTelEndpoint string

	// GenerationTimeout bounds blocking provider calls.
	// Default: 90 seconds.
	GenerationTimeout time.Duration

	// RateLimit tunes the per-client limiter on the chat endpoints.
	// Zero values use DefaultRateLimiterConfig.
	RateLimit middleware.RateLimiterConfig

	// SessionRetention is how long idle session summaries are kept
	// before the background sweeper removes them.
	// Default: session.DefaultRetention (30 days).
	SessionRetention time.Duration

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var or "debug".
	GinMode string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Forced on by applyConfigDefaults; tests construct components directly
	// when they need a metrics-free registry.
	EnableMetrics bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - Provider clients behind the ProviderRouter
//   - Supabase persistence (constitutions, summaries, corpus, registry)
//   - OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	llmClient     llm.LLMClient
	sb            *supabase.Client
	registry      *routing.SupabaseRegistry
	ask           *orchservices.AskService
	legal         *orchservices.LegalService
	sweeper       *session.RetentionSweeper
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Creates the Supabase client
//  5. Builds the provider router from available API keys
//  6. Wires retrieval, routing, session, and constitution components
//  7. Sets up HTTP routes
//
// Provider registration is best-effort: a missing DeepSeek or Gemini key
// logs a warning and that provider stays unregistered, but at least one
// provider must come up and the Gemini key is required because vector
// retrieval embeds queries with it.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("initialized Prometheus metrics")
	}

	if err := s.initSupabase(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
	}

	embedder, err := s.initLLM()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := s.initServices(embedder); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to wire services: %w", err)
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	s.sweeper.Start()
	defer s.sweeper.Stop()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("starting orchestrator server", "port", s.config.Port, "agent", s.config.AgentName)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.SupabaseURL == "" {
		cfg.SupabaseURL = os.Getenv("SUPABASE_URL")
	}
	if cfg.SupabaseKey == "" {
		cfg.SupabaseKey = resolveSecret("SUPABASE_SERVICE_KEY", "/run/secrets/supabase_service_key")
	}
	if cfg.AgentName == "" {
		cfg.AgentName = datatypes.DefaultAgentName
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "aria"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "otel-collector:4317"
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = orchservices.DefaultGenerationTimeout
	}
	cfg.EnableMetrics = true

	return cfg
}

// resolveSecret reads a credential from the environment, falling back to a
// container secret file.
func resolveSecret(envVar, secretPath string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(content))
	}
	return ""
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("aria-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initSupabase creates the PostgREST client every persistence component
// shares. Supabase is not optional: the constitution, summaries, corpus,
// and registry all live there.
func (s *service) initSupabase() error {
	sb, err := supabase.New(s.config.SupabaseURL, s.config.SupabaseKey)
	if err != nil {
		return err
	}
	s.sb = sb
	slog.Info("Supabase client initialized", "url", s.config.SupabaseURL)
	return nil
}

// initLLM builds the provider router and the query embedder.
//
// OpenAI is mandatory (the heuristic fallback routes to GPT models), Gemini
// is mandatory for embeddings, DeepSeek is optional.
func (s *service) initLLM() (retrieval.Embedder, error) {
	router := llm.NewProviderRouter()

	openaiClient, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	router.Register(llm.ProviderOpenAI, openaiClient)

	if deepseekClient, err := llm.NewDeepSeekClient(); err != nil {
		slog.Warn("DeepSeek not configured, deepseek-* models will be rejected", "error", err)
	} else {
		router.Register(llm.ProviderDeepSeek, deepseekClient)
	}

	if geminiClient, err := llm.NewGeminiClient(); err != nil {
		slog.Warn("Gemini chat not configured, gemini-* models will be rejected", "error", err)
	} else {
		router.Register(llm.ProviderGemini, geminiClient)
	}

	embedder, err := llm.NewGeminiEmbedder()
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: %w", err)
	}

	s.llmClient = router
	slog.Info("provider router initialized", "providers", router.Providers())
	return embedder, nil
}

// initServices wires the domain components into the two request services.
func (s *service) initServices(embedder retrieval.Embedder) error {
	s.registry = routing.NewSupabaseRegistry(s.sb)
	resolver := routing.NewResolver(s.registry, s.config.AgentID)

	ask, err := orchservices.NewAskService(orchservices.AskServiceConfig{
		Constitutions: constitution.NewSupabaseStore(s.sb),
		Summaries:     session.NewSupabaseStore(s.sb),
		Retriever:     retrieval.NewVectorRetriever(s.sb, embedder),
		Resolver:      resolver,
		LLM:           s.llmClient,
		Interactions:  orchservices.NewInteractionLog(s.sb),
		AgentName:     s.config.AgentName,
		Timeout:       s.config.GenerationTimeout,
	})
	if err != nil {
		return err
	}
	s.ask = ask

	legal, err := orchservices.NewLegalService(orchservices.LegalServiceConfig{
		Retriever: retrieval.NewKeywordRetriever(s.sb, retrieval.DefaultKeywordTables),
		Resolver:  resolver,
		LLM:       s.llmClient,
		Timeout:   s.config.GenerationTimeout,
	})
	if err != nil {
		return err
	}
	s.legal = legal

	s.sweeper = session.NewRetentionSweeper(s.sb, session.RetentionConfig{
		Retention: s.config.SessionRetention,
	})

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("aria-orchestrator"))

	routes.SetupRoutes(s.router, routes.Deps{
		Ask:           s.ask,
		Legal:         s.legal,
		LLM:           s.llmClient,
		Constitutions: constitution.NewSupabaseStore(s.sb),
		Registry:      s.registry,
		AgentID:       s.config.AgentID,
		RateLimits:    middleware.NewRateLimiterStore(s.config.RateLimit),
	})
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
