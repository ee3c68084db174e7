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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Context Formatting
// =============================================================================

func TestContextTag_OneBased(t *testing.T) {
	assert.Equal(t, "S1", ContextTag(0))
	assert.Equal(t, "S12", ContextTag(11))
}

func TestFormatContext(t *testing.T) {
	chunks := []datatypes.ScoredChunk{
		scoredChunk("c1", "first passage", "a.md"),
		scoredChunk("c2", "second passage", "b.md"),
	}

	out := FormatContext(chunks)

	assert.Contains(t, out, "[S1] (source: a.md)\nfirst passage")
	assert.Contains(t, out, "[S2] (source: b.md)\nsecond passage")
	assert.NotContains(t, out, "[S3]")
}

func TestTagToChunkId(t *testing.T) {
	chunks := []datatypes.ScoredChunk{
		scoredChunk("c1", "first", "a.md"),
		scoredChunk("c2", "second", "b.md"),
	}

	m := TagToChunkId(chunks)

	assert.Equal(t, map[string]string{"S1": "c1", "S2": "c2"}, m)
}

// =============================================================================
// Writer
// =============================================================================

func testWriterRequest() WriterRequest {
	return WriterRequest{
		Query: "How long is the refund window?",
		Mode:  datatypes.ModeAnswer,
		Chunks: []datatypes.ScoredChunk{
			scoredChunk("c1", "Refunds within 30 days.", "policy.md"),
		},
	}
}

func TestWriter_Draft_UserTurnLayout(t *testing.T) {
	client := &mockLLM{responses: []string{"Refunds within 30 days. [Source: S1]"}}
	w := NewWriter(client, testPrompts())

	draft, err := w.Draft(context.Background(), testWriterRequest())

	require.NoError(t, err)
	assert.Equal(t, "Refunds within 30 days. [Source: S1]", draft)

	user := client.lastUserContent()
	assert.Contains(t, user, "## Context Passages")
	assert.Contains(t, user, "[S1] (source: policy.md)")
	assert.Contains(t, user, "## Question\nHow long is the refund window?")
	assert.NotContains(t, user, "## Conversation History")
	assert.NotContains(t, user, "## Output Mode")
}

func TestWriter_Draft_HistoryAndDraftMode(t *testing.T) {
	client := &mockLLM{responses: []string{"draft text"}}
	w := NewWriter(client, testPrompts())

	req := testWriterRequest()
	req.Mode = datatypes.ModeDraft
	req.History = []datatypes.HistoryTurn{
		{Question: "prior question", Answer: "prior answer"},
	}

	_, err := w.Draft(context.Background(), req)

	require.NoError(t, err)
	user := client.lastUserContent()
	assert.Contains(t, user, "## Conversation History")
	assert.Contains(t, user, "User: prior question\nAssistant: prior answer")
	assert.Contains(t, user, "## Output Mode")
}

func TestWriter_Draft_EmptyResponseIsAnError(t *testing.T) {
	client := &mockLLM{responses: []string{"  \n "}}
	w := NewWriter(client, testPrompts())

	_, err := w.Draft(context.Background(), testWriterRequest())

	assert.Error(t, err)
}

func TestWriter_Revise_CarriesPriorDraftAndInstructions(t *testing.T) {
	client := &mockLLM{responses: []string{"revised text"}}
	w := NewWriter(client, testPrompts())

	revised, err := w.Revise(context.Background(), testWriterRequest(),
		"the old draft", "Fix the refund window.")

	require.NoError(t, err)
	assert.Equal(t, "revised text", revised)

	user := client.lastUserContent()
	assert.Contains(t, user, "## Previous Draft\nthe old draft")
	assert.Contains(t, user, "## Revision Instructions\nFix the refund window.")

	// Revision runs under its own system prompt.
	system := client.calls[0][0]
	require.Equal(t, "system", system.Role)
	assert.Equal(t, DefaultRolePrompts().WriterRevision, system.Content)
}
