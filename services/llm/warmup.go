// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Role Model Warmup
// =============================================================================

// RoleWarmer pre-loads the writer, skeptic, and judge models into VRAM.
//
// # Description
//
// When the pipeline roles run on different Ollama models, each phase
// transition would otherwise evict the previous role's model and pay the
// cold-load cost again. Warming each model once with keep_alive set keeps
// them resident, so a verification session alternates roles without
// thrashing.
//
// # Limitations
//
//   - Models load sequentially to avoid VRAM contention.
//   - If VRAM cannot hold all role models, later loads may evict earlier
//     ones; Ollama decides, we only warm.
type RoleWarmer struct {
	baseURL    string
	httpClient *http.Client
	keepAlive  string
}

// NewRoleWarmer builds a warmer for the Ollama server at OLLAMA_BASE_URL.
// Returns nil when the backend is not Ollama; warmup is a no-op elsewhere.
func NewRoleWarmer() *RoleWarmer {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_BACKEND")))
	if backend != "" && backend != "ollama" {
		return nil
	}
	baseURL := strings.TrimSuffix(os.Getenv("OLLAMA_BASE_URL"), "/")
	if baseURL == "" {
		return nil
	}
	keepAlive := os.Getenv("OLLAMA_KEEP_ALIVE")
	if keepAlive == "" {
		keepAlive = "30m"
	}
	return &RoleWarmer{
		baseURL: baseURL,
		// Long timeout: a cold model load can take minutes.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		keepAlive:  keepAlive,
	}
}

// WarmRoleModels loads every distinct model configured for the pipeline
// roles. A warmup failure is logged and skipped: the model will still
// cold-load on first use.
func (w *RoleWarmer) WarmRoleModels(ctx context.Context) {
	if w == nil {
		return
	}
	defaultModel := os.Getenv("OLLAMA_MODEL")
	seen := make(map[string]bool)
	for _, role := range []string{RoleWriter, RoleSkeptic, RoleJudge} {
		model := roleModel(role)
		if model == "" {
			model = defaultModel
		}
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		if err := w.warm(ctx, model); err != nil {
			slog.Warn("Failed to warm role model, it will cold-load on first use",
				"model", model, "role", role, "error", err)
		}
	}
}

// warm sends a minimal chat request so Ollama loads the model and records
// the keep_alive.
func (w *RoleWarmer) warm(ctx context.Context, model string) error {
	start := time.Now()
	slog.Info("Warming model", "model", model, "keep_alive", w.keepAlive)

	req := ollamaChatRequest{
		Model:     model,
		Messages:  []datatypes.Message{{Role: "user", Content: "ping"}},
		Stream:    false,
		KeepAlive: w.keepAlive,
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling warmup request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", w.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("creating warmup request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending warmup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("warmup failed with status %d: %s", resp.StatusCode, string(body))
	}
	_, _ = io.ReadAll(resp.Body)

	slog.Info("Model warmed", "model", model, "duration", time.Since(start))
	return nil
}
