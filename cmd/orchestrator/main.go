// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the GroundCheck orchestrator HTTP server.
//
// This is the main entry point for the containerized orchestrator service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 12310)
//   - LLM_BACKEND: LLM provider - ollama, openai, anthropic, local (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (required)
//   - EMBEDDING_SERVICE_URL: embedding service URL (required)
//   - GROUNDCHECK_DATA_DIR: embedded session store directory (default: ./data/groundcheck)
//   - GROUNDCHECK_PROMPT_PATH: YAML role-prompt overrides, hot-reloaded (optional)
//   - GROUNDCHECK_ENHANCED_SKEPTIC: set to "true" to enable domain-knowledge conflict flagging
//   - GROUNDCHECK_LOG_LEVEL: debug, info, warn, or error (default: info)
//   - GCS_BUCKET: archive raw uploads to this GCS bucket (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: groundcheck-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/GroundCheck/pkg/logging"
	"github.com/AleutianAI/GroundCheck/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("GROUNDCHECK_LOG_LEVEL")),
		Service: "orchestrator",
		JSON:    true,
		Output:  os.Stdout,
	})
	logger.SetAsDefault()

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:            getEnvInt("ORCHESTRATOR_PORT", 12310),
		WeaviateURL:     os.Getenv("WEAVIATE_SERVICE_URL"),
		DataDir:         getEnvString("GROUNDCHECK_DATA_DIR", "./data/groundcheck"),
		GCSBucket:       os.Getenv("GCS_BUCKET"),
		PromptPath:      os.Getenv("GROUNDCHECK_PROMPT_PATH"),
		EnhancedSkeptic: getEnvBool("GROUNDCHECK_ENHANCED_SKEPTIC", false),
		OTelEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "groundcheck-otel-collector:4317"),
	}

	slog.Info("Starting orchestrator",
		"port", cfg.Port,
		"llm_backend", getEnvString("LLM_BACKEND", "ollama"),
		"weaviate_url", cfg.WeaviateURL,
	)

	// Create orchestrator with default (no-op) extension options.
	// Enterprise builds will pass custom ServiceOptions here.
	svc, err := orchestrator.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
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

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
