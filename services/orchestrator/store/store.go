// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides persistence for the verification domain.
//
// Storage is tiered the same way the rest of the stack is:
//
//	Session aggregate (sessions, claims, ledger, progress, feedback)
//	and document metadata → BadgerDB (embedded, low-latency)
//	Chunk content + vectors → Weaviate (similarity search)
//	Raw uploaded bytes → ObjectStore (GCS or no-op)
//
// All implementations are safe for concurrent use. The document/chunk tier
// is append-mostly: readers never observe partially ingested documents
// because a document only becomes visible to retrieval in ready status.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SessionStore persists the session aggregate and document metadata.
//
// # Description
//
// The session aggregate owns claims, ledger entries, progress, and feedback.
// ReplaceVerdicts and DeleteSessionCascade operate on the whole aggregate in
// a defined order rather than leaving child cleanup to call sites.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// --- Documents (metadata only; chunk bodies live in the ChunkStore) ---

	CreateDocument(ctx context.Context, doc *datatypes.Document) error
	UpdateDocument(ctx context.Context, doc *datatypes.Document) error
	GetDocument(ctx context.Context, dataSpace, documentId string) (*datatypes.Document, error)
	ListDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error)

	// ReadyDocuments returns only documents in ready status. Documents still
	// processing or in error are invisible to retrieval.
	ReadyDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error)

	DeleteDocument(ctx context.Context, dataSpace, documentId string) error

	// --- Sessions ---

	CreateSession(ctx context.Context, sess *datatypes.Session) error
	UpdateSession(ctx context.Context, sess *datatypes.Session) error
	GetSession(ctx context.Context, sessionId string) (*datatypes.Session, error)
	ListSessions(ctx context.Context, dataSpace string) ([]datatypes.Session, error)

	// ReplaceVerdicts atomically replaces the session's claims and ledger
	// entries with the given set. Re-adjudication on a revision cycle
	// replaces, never appends.
	ReplaceVerdicts(ctx context.Context, sessionId string,
		claims []datatypes.Claim, entries []datatypes.LedgerEntry) error

	GetClaims(ctx context.Context, sessionId string) ([]datatypes.Claim, error)
	GetLedgerEntries(ctx context.Context, sessionId string) ([]datatypes.LedgerEntry, error)

	// --- Progress ---

	// UpsertProgress writes the single live progress record for a session.
	UpsertProgress(ctx context.Context, prog *datatypes.PipelineProgress) error
	GetProgress(ctx context.Context, sessionId string) (*datatypes.PipelineProgress, error)

	// --- Feedback ---

	SaveFeedback(ctx context.Context, fb *datatypes.Feedback) error
	ListFeedback(ctx context.Context, sessionId string) ([]datatypes.Feedback, error)

	// DeleteSessionCascade removes the session and every owned child record
	// in a defined order: feedback, ledger entries, claims, progress, then
	// the session row itself.
	DeleteSessionCascade(ctx context.Context, sessionId string) error
}

// ChunkStore persists chunk content and vectors and serves similarity search.
type ChunkStore interface {
	// PutChunks batch-inserts chunks with their vectors. Chunk ids are
	// deterministic over (document, content hash), so re-inserting the same
	// content reuses the existing object rather than duplicating it.
	// Returns the number of chunks newly stored or refreshed.
	PutChunks(ctx context.Context, doc *datatypes.Document,
		chunks []datatypes.Chunk, vectors [][]float32) (int, error)

	// Search runs nearest-neighbor search over chunk vectors, restricted to
	// the given data space and document ids, returning results at or above
	// the similarity threshold, best first.
	Search(ctx context.Context, dataSpace string, documentIds []string,
		vector []float32, limit int, threshold float64) ([]datatypes.ScoredChunk, error)

	GetChunk(ctx context.Context, chunkId string) (*datatypes.Chunk, error)

	// DeleteByDocument removes all chunks belonging to a document.
	DeleteByDocument(ctx context.Context, documentId string) error
}

// ObjectStore archives raw uploaded bytes before processing. Out-of-band
// collaborator per the system boundary; our callers only Put and Get.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
