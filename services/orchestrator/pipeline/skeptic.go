// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Skeptic Report
// =============================================================================

// SkepticClaim is one extracted claim with the skeptic's advisory assessment.
// The judge re-derives every verdict; nothing here is authoritative.
type SkepticClaim struct {
	Text             string `json:"text"`
	Type             string `json:"type"`
	Importance       string `json:"importance"`
	RequiresCitation bool   `json:"requires_citation"`
	Verdict          string `json:"verdict"`
	SourceTag        string `json:"source_tag"`
	Notes            string `json:"notes"`
}

// SkepticReport is the skeptic's full output for one draft.
//
// Raw always holds the model's verbatim response. When ParseFailed is set the
// structured fields are empty and the judge works from Raw alone; a skeptic
// that cannot be parsed degrades the pipeline, it does not stop it.
type SkepticReport struct {
	Claims             []SkepticClaim `json:"claims"`
	StructuralFindings []string       `json:"structural_findings"`
	Raw                string         `json:"-"`
	ParseFailed        bool           `json:"-"`
}

// =============================================================================
// Skeptic
// =============================================================================

// Skeptic extracts factual claims from a draft and challenges each one
// against the retrieved context.
//
// # Description
//
// In standard mode the skeptic judges claims only against the context
// passages. Enhanced mode additionally checks claims against well-established
// general knowledge; when a passage and general knowledge disagree the claim
// is conflict-flagged with both positions recorded, never silently resolved
// in either direction.
type Skeptic struct {
	client   llm.LLMClient
	prompts  *PromptStore
	enhanced bool
	params   llm.GenerationParams
}

// NewSkeptic constructs a Skeptic. Enhanced mode is a deployment-level
// switch, not per-request.
func NewSkeptic(client llm.LLMClient, prompts *PromptStore, enhanced bool) *Skeptic {
	temp := float32(0.1)
	maxTokens := 4096
	return &Skeptic{
		client:   client,
		prompts:  prompts,
		enhanced: enhanced,
		params:   llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
	}
}

// Review extracts and assesses every claim in the draft.
func (s *Skeptic) Review(ctx context.Context, draft string, chunks []datatypes.ScoredChunk) (*SkepticReport, error) {
	prompts := s.prompts.Get()
	system := prompts.Skeptic
	if s.enhanced {
		system = prompts.SkepticEnhanced
	}

	var b strings.Builder
	b.WriteString("## Context Passages\n")
	b.WriteString(FormatContext(chunks))
	b.WriteString("\n\n## Draft Under Review\n")
	b.WriteString(draft)

	messages := []datatypes.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
	raw, err := s.client.Chat(ctx, messages, s.params)
	if err != nil {
		return nil, fmt.Errorf("skeptic review failed: %w", err)
	}

	report := parseSkepticReport(raw)
	if report.ParseFailed {
		slog.Warn("Skeptic response was not parseable JSON, judge will see raw text",
			"response_length", len(raw))
	}
	return report, nil
}

func parseSkepticReport(raw string) *SkepticReport {
	report := &SkepticReport{Raw: raw}
	obj, err := datatypes.ExtractJSONObject(raw)
	if err != nil {
		report.ParseFailed = true
		return report
	}
	if err := json.Unmarshal([]byte(obj), report); err != nil {
		report.ParseFailed = true
		report.Claims = nil
		report.StructuralFindings = nil
		return report
	}
	// Claims with no text give the judge nothing to re-derive.
	kept := report.Claims[:0]
	for _, c := range report.Claims {
		if strings.TrimSpace(c.Text) != "" {
			kept = append(kept, c)
		}
	}
	report.Claims = kept
	return report
}

// Digest renders the report as the judge's input section. Parse failures
// pass the raw response through untouched.
func (r *SkepticReport) Digest() string {
	if r.ParseFailed {
		return r.Raw
	}
	out, err := json.MarshalIndent(struct {
		Claims             []SkepticClaim `json:"claims"`
		StructuralFindings []string       `json:"structural_findings,omitempty"`
	}{r.Claims, r.StructuralFindings}, "", "  ")
	if err != nil {
		return r.Raw
	}
	return string(out)
}
