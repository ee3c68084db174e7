// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

func newTestStore(t *testing.T) *BadgerSessionStore {
	t.Helper()
	s, err := NewBadgerSessionStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(id, dataSpace string, status datatypes.DocumentStatus) *datatypes.Document {
	return &datatypes.Document{
		DocumentId: id,
		DataSpace:  dataSpace,
		Source:     id + ".md",
		Status:     status,
	}
}

// =============================================================================
// Documents
// =============================================================================

func TestBadgerStore_DocumentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("doc-1", "space-a", datatypes.DocumentProcessing)
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "space-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1.md", got.Source)
	assert.Equal(t, datatypes.DocumentProcessing, got.Status)

	got.Status = datatypes.DocumentReady
	require.NoError(t, s.UpdateDocument(ctx, got))
	got, err = s.GetDocument(ctx, "space-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.DocumentReady, got.Status)

	require.NoError(t, s.DeleteDocument(ctx, "space-a", "doc-1"))
	_, err = s.GetDocument(ctx, "space-a", "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_GetDocument_WrongDataSpaceIsNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx,
		testDocument("doc-1", "space-a", datatypes.DocumentReady)))

	_, err := s.GetDocument(ctx, "space-b", "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_ReadyDocuments_FiltersStatusAndSpace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDocument(ctx, testDocument("doc-1", "space-a", datatypes.DocumentReady)))
	require.NoError(t, s.CreateDocument(ctx, testDocument("doc-2", "space-a", datatypes.DocumentProcessing)))
	require.NoError(t, s.CreateDocument(ctx, testDocument("doc-3", "space-a", datatypes.DocumentError)))
	require.NoError(t, s.CreateDocument(ctx, testDocument("doc-4", "space-b", datatypes.DocumentReady)))

	ready, err := s.ReadyDocuments(ctx, "space-a")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "doc-1", ready[0].DocumentId)

	all, err := s.ListDocuments(ctx, "space-a")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// Sessions
// =============================================================================

func TestBadgerStore_SessionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "space-a",
		Query:     "a question",
		Status:    datatypes.SessionPending,
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SessionPending, got.Status)

	got.Status = datatypes.SessionCompleted
	got.EvidenceCoverage = 0.9
	require.NoError(t, s.UpdateSession(ctx, got))

	got, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SessionCompleted, got.Status)
	assert.Equal(t, 0.9, got.EvidenceCoverage)
	assert.Positive(t, got.UpdatedAt)
}

func TestBadgerStore_ListSessions_FiltersByDataSpace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, space := range []string{"space-a", "space-a", "space-b"} {
		require.NoError(t, s.CreateSession(ctx, &datatypes.Session{
			SessionId: fmt.Sprintf("sess-%d", i),
			DataSpace: space,
			CreatedAt: int64(i),
		}))
	}

	inA, err := s.ListSessions(ctx, "space-a")
	require.NoError(t, err)
	assert.Len(t, inA, 2)

	all, err := s.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "sess-2", all[0].SessionId)
}

// =============================================================================
// Claims & Ledger
// =============================================================================

func verdictSet(sessionId string, n int, verdict datatypes.Verdict) ([]datatypes.Claim, []datatypes.LedgerEntry) {
	claims := make([]datatypes.Claim, n)
	entries := make([]datatypes.LedgerEntry, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("claim-%d", i)
		claims[i] = datatypes.Claim{
			ClaimId:   id,
			SessionId: sessionId,
			Text:      fmt.Sprintf("claim text %d", i),
		}
		entries[i] = datatypes.LedgerEntry{
			ClaimId:   id,
			SessionId: sessionId,
			Verdict:   verdict,
		}
	}
	return claims, entries
}

func TestBadgerStore_ReplaceVerdicts_ReplacesNotAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	claims, entries := verdictSet("sess-1", 3, datatypes.VerdictNotFound)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-1", claims, entries))

	// The next cycle produces fewer claims; the old set must vanish.
	claims, entries = verdictSet("sess-1", 2, datatypes.VerdictSupported)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-1", claims, entries))

	gotClaims, err := s.GetClaims(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, gotClaims, 2)

	gotEntries, err := s.GetLedgerEntries(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, gotEntries, 2)
	for _, e := range gotEntries {
		assert.Equal(t, datatypes.VerdictSupported, e.Verdict)
	}
}

func TestBadgerStore_ReplaceVerdicts_PreservesDraftOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	claims, entries := verdictSet("sess-1", 12, datatypes.VerdictSupported)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-1", claims, entries))

	got, err := s.GetClaims(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, c := range got {
		assert.Equal(t, fmt.Sprintf("claim-%d", i), c.ClaimId)
	}
}

func TestBadgerStore_ReplaceVerdicts_RejectsMismatchedSets(t *testing.T) {
	s := newTestStore(t)

	claims, _ := verdictSet("sess-1", 2, datatypes.VerdictSupported)
	_, entries := verdictSet("sess-1", 3, datatypes.VerdictSupported)

	err := s.ReplaceVerdicts(context.Background(), "sess-1", claims, entries)
	assert.Error(t, err)
}

func TestBadgerStore_ReplaceVerdicts_ScopedToSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	claims, entries := verdictSet("sess-1", 2, datatypes.VerdictSupported)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-1", claims, entries))
	claims, entries = verdictSet("sess-2", 1, datatypes.VerdictWeak)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-2", claims, entries))

	got, err := s.GetClaims(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// =============================================================================
// Progress & Feedback
// =============================================================================

func TestBadgerStore_ProgressUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProgress(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertProgress(ctx, &datatypes.PipelineProgress{
		SessionId: "sess-1",
		Phase:     datatypes.PhaseRetrieval,
		Status:    datatypes.PhaseInProgress,
	}))
	require.NoError(t, s.UpsertProgress(ctx, &datatypes.PipelineProgress{
		SessionId: "sess-1",
		Phase:     datatypes.PhaseJudge,
		Status:    datatypes.PhaseCompleted,
	}))

	prog, err := s.GetProgress(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.PhaseJudge, prog.Phase)
	assert.Equal(t, datatypes.PhaseCompleted, prog.Status)
	assert.Positive(t, prog.UpdatedAt)
}

func TestBadgerStore_Feedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFeedback(ctx, &datatypes.Feedback{
		FeedbackId: "fb-1", SessionId: "sess-1", Type: datatypes.FeedbackHelpful,
	}))
	require.NoError(t, s.SaveFeedback(ctx, &datatypes.Feedback{
		FeedbackId: "fb-2", SessionId: "sess-1", Type: datatypes.FeedbackIncorrect,
		Comment: "the refund window is wrong",
	}))

	fbs, err := s.ListFeedback(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, fbs, 2)

	other, err := s.ListFeedback(ctx, "sess-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// =============================================================================
// Cascade Delete
// =============================================================================

func TestBadgerStore_DeleteSessionCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, &datatypes.Session{
		SessionId: "sess-1", DataSpace: "space-a",
	}))
	claims, entries := verdictSet("sess-1", 2, datatypes.VerdictSupported)
	require.NoError(t, s.ReplaceVerdicts(ctx, "sess-1", claims, entries))
	require.NoError(t, s.UpsertProgress(ctx, &datatypes.PipelineProgress{
		SessionId: "sess-1", Phase: datatypes.PhaseJudge,
	}))
	require.NoError(t, s.SaveFeedback(ctx, &datatypes.Feedback{
		FeedbackId: "fb-1", SessionId: "sess-1", Type: datatypes.FeedbackHelpful,
	}))

	// A bystander session must survive the cascade.
	require.NoError(t, s.CreateSession(ctx, &datatypes.Session{
		SessionId: "sess-2", DataSpace: "space-a",
	}))

	require.NoError(t, s.DeleteSessionCascade(ctx, "sess-1"))

	_, err := s.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	gotClaims, err := s.GetClaims(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, gotClaims)
	gotEntries, err := s.GetLedgerEntries(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, gotEntries)
	_, err = s.GetProgress(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	fbs, err := s.ListFeedback(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, fbs)

	_, err = s.GetSession(ctx, "sess-2")
	assert.NoError(t, err)
}
