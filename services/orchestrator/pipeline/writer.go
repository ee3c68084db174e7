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
	"fmt"
	"strings"

	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Context Formatting
// =============================================================================

// ContextTag returns the passage tag for the chunk at the given position,
// 1-based: S1, S2, ...
func ContextTag(i int) string {
	return fmt.Sprintf("S%d", i+1)
}

// FormatContext renders retrieved chunks as a numbered context block. The
// tags it emits are the same ones the writer cites and the judge records in
// supporting_chunks, so all three stages share one numbering.
func FormatContext(chunks []datatypes.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%s] (source: %s)\n%s\n\n", ContextTag(i), c.SourceName, c.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// TagToChunkId maps each context tag to its chunk id for resolving the
// judge's supporting_chunks references.
func TagToChunkId(chunks []datatypes.ScoredChunk) map[string]string {
	m := make(map[string]string, len(chunks))
	for i, c := range chunks {
		m[ContextTag(i)] = c.ChunkId
	}
	return m
}

// =============================================================================
// Writer
// =============================================================================

// WriterRequest carries everything the writer needs for one draft.
type WriterRequest struct {
	Query   string
	Mode    datatypes.VerifyMode
	History []datatypes.HistoryTurn
	Chunks  []datatypes.ScoredChunk
}

// Writer produces draft answers grounded on retrieved context.
//
// # Description
//
// The writer sees only the numbered context passages and the conversation
// history; it never queries stores itself. Every factual statement it emits
// carries a [Source: Sn] or [Model Knowledge: writer] tag, which downstream
// stages rely on to attribute claims. In draft mode the writer is told the
// output is an intermediate draft the caller will edit.
type Writer struct {
	client  llm.LLMClient
	prompts *PromptStore
	params  llm.GenerationParams
}

// NewWriter constructs a Writer over the given backend.
func NewWriter(client llm.LLMClient, prompts *PromptStore) *Writer {
	temp := float32(0.3)
	maxTokens := 4096
	return &Writer{
		client:  client,
		prompts: prompts,
		params:  llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
	}
}

// Draft produces the initial draft for a session.
func (w *Writer) Draft(ctx context.Context, req WriterRequest) (string, error) {
	system := w.prompts.Get().Writer
	user := w.buildUserTurn(req)
	return w.generate(ctx, system, user)
}

// Revise produces a new draft addressing the judge's revision instructions.
// The prior draft and the instructions travel in the user turn so the writer
// sees exactly what it wrote and exactly what must change.
func (w *Writer) Revise(ctx context.Context, req WriterRequest, priorDraft, instructions string) (string, error) {
	system := w.prompts.Get().WriterRevision
	var b strings.Builder
	b.WriteString(w.buildUserTurn(req))
	b.WriteString("\n\n## Previous Draft\n")
	b.WriteString(priorDraft)
	b.WriteString("\n\n## Revision Instructions\n")
	b.WriteString(instructions)
	return w.generate(ctx, system, b.String())
}

func (w *Writer) generate(ctx context.Context, system, user string) (string, error) {
	messages := []datatypes.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	draft, err := w.client.Chat(ctx, messages, w.params)
	if err != nil {
		return "", fmt.Errorf("writer generation failed: %w", err)
	}
	if strings.TrimSpace(draft) == "" {
		return "", fmt.Errorf("writer returned an empty draft")
	}
	return draft, nil
}

func (w *Writer) buildUserTurn(req WriterRequest) string {
	var b strings.Builder
	b.WriteString("## Context Passages\n")
	b.WriteString(FormatContext(req.Chunks))
	if len(req.History) > 0 {
		b.WriteString("\n\n## Conversation History\n")
		for _, turn := range req.History {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
	}
	if req.Mode == datatypes.ModeDraft {
		b.WriteString("\n\n## Output Mode\nProduce a working draft the user will edit; " +
			"keep structure loose but keep every source tag.")
	}
	b.WriteString("\n\n## Question\n")
	b.WriteString(req.Query)
	return b.String()
}
