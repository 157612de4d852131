// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator starts the A.R.I.A. HTTP server.
//
// This is the main entry point for the containerized service. Configuration
// comes from environment variables, optionally overlaid by a YAML file named
// by ARIA_CONFIG_FILE.
//
// # Environment Variables
//
//   - ARIA_PORT: HTTP server port (default: 8080)
//   - SUPABASE_URL: Supabase project URL (required)
//   - SUPABASE_SERVICE_KEY: Supabase service-role key (or /run/secrets/supabase_service_key)
//   - OPENAI_API_KEY: OpenAI key (required; /run/secrets/openai_api_key fallback)
//   - GOOGLE_API_KEY: Gemini key for chat and embeddings (required)
//   - DEEPSEEK_API_KEY: DeepSeek key (optional)
//   - ADMIN_API_KEY: Operator key for the /v1/admin endpoints
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: otel-collector:4317)
//   - ARIA_CONFIG_FILE: Optional YAML config path
//   - ARIA_LOG_LEVEL: debug|info|warn|error (default: info)
//   - ARIA_LOG_DIR: Optional directory for JSON log files
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/preventiflow/aria-orchestrator/pkg/logging"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator"
	"github.com/preventiflow/aria-orchestrator/services/orchestrator/middleware"
)

// fileConfig is the YAML overlay. Only operational tuning lives here;
// credentials stay in the environment or container secrets.
type fileConfig struct {
	Port              int    `yaml:"port"`
	AgentName         string `yaml:"agent_name"`
	AgentID           string `yaml:"agent_id"`
	OTelEndpoint      string `yaml:"otel_endpoint"`
	GenerationTimeout string `yaml:"generation_timeout"`
	SessionRetention  string `yaml:"session_retention"`
	GinMode           string `yaml:"gin_mode"`
	RateLimit         struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("ARIA_LOG_LEVEL")),
		LogDir:  os.Getenv("ARIA_LOG_DIR"),
		Service: "orchestrator",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := orchestrator.Config{
		Port:         getEnvInt("ARIA_PORT", 8080),
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
	}
	applyFileConfig(&cfg)

	slog.Info("starting A.R.I.A. orchestrator", "port", cfg.Port)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// applyFileConfig overlays the optional YAML file onto the env-derived
// config. A missing file is fine; an unreadable or malformed one is fatal,
// because silently ignoring a config the operator pointed at would be worse.
func applyFileConfig(cfg *orchestrator.Config) {
	path := os.Getenv("ARIA_CONFIG_FILE")
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read config file %s: %v", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		log.Fatalf("Failed to parse config file %s: %v", path, err)
	}

	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.AgentName != "" {
		cfg.AgentName = fc.AgentName
	}
	if fc.AgentID != "" {
		cfg.AgentID = fc.AgentID
	}
	if fc.OTelEndpoint != "" {
		cfg.OTelEndpoint = fc.OTelEndpoint
	}
	if fc.GinMode != "" {
		cfg.GinMode = fc.GinMode
	}
	if fc.GenerationTimeout != "" {
		d, err := time.ParseDuration(fc.GenerationTimeout)
		if err != nil {
			log.Fatalf("Invalid generation_timeout in %s: %v", path, err)
		}
		cfg.GenerationTimeout = d
	}
	if fc.SessionRetention != "" {
		d, err := time.ParseDuration(fc.SessionRetention)
		if err != nil {
			log.Fatalf("Invalid session_retention in %s: %v", path, err)
		}
		cfg.SessionRetention = d
	}
	if fc.RateLimit.RequestsPerSecond > 0 || fc.RateLimit.Burst > 0 {
		cfg.RateLimit = middleware.RateLimiterConfig{
			RequestsPerSecond: fc.RateLimit.RequestsPerSecond,
			Burst:             fc.RateLimit.Burst,
		}
	}

	slog.Info("applied config file", "path", path)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
