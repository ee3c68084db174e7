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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// GenerationParams are the sampling knobs shared by every backend. Nil
// pointers mean "backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// Role names used for per-role model selection. The writer, skeptic, and
// judge may run on different models of the same backend.
const (
	RoleWriter  = "writer"
	RoleSkeptic = "skeptic"
	RoleJudge   = "judge"
)

// NewClient constructs the backend selected by LLM_BACKEND
// (ollama | openai | anthropic | local). Defaults to ollama.
func NewClient() (LLMClient, error) {
	return NewClientForRole("")
}

// NewClientForRole constructs a backend client for a pipeline role. For the
// Ollama backend the model can be overridden per role via
// GROUNDCHECK_<ROLE>_MODEL (e.g. GROUNDCHECK_JUDGE_MODEL); other backends
// share one model across roles.
func NewClientForRole(role string) (LLMClient, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_BACKEND")))
	if backend == "" {
		backend = "ollama"
		slog.Warn("LLM_BACKEND not set, defaulting to ollama")
	}

	switch backend {
	case "ollama":
		return NewOllamaClient(roleModel(role))
	case "openai":
		return NewOpenAIClient()
	case "anthropic":
		return NewAnthropicClient()
	case "local":
		return NewLocalLlamaCppClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", backend)
	}
}

func roleModel(role string) string {
	if role == "" {
		return ""
	}
	return os.Getenv("GROUNDCHECK_" + strings.ToUpper(role) + "_MODEL")
}
