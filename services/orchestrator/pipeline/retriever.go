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
	"log/slog"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultRetrievalLimit caps how many chunks a single query pulls back.
	DefaultRetrievalLimit = 15

	// DefaultCertaintyThreshold filters out weakly related chunks.
	DefaultCertaintyThreshold = 0.3
)

// =============================================================================
// Retriever
// =============================================================================

// RetrieverConfig tunes a Retriever. Zero values fall back to the defaults.
type RetrieverConfig struct {
	Limit     int
	Threshold float64
}

// Retriever turns a query into scored evidence chunks.
//
// # Description
//
// Retrieval is scoped to the session's data space and restricted to
// documents whose ingestion has fully completed. Documents still uploading,
// still processing, or in an error state contribute nothing: a partially
// embedded document would otherwise surface an unrepresentative slice of
// itself. An empty ready set short-circuits to an empty result without
// calling the embedder at all; downstream verdicts then surface the missing
// coverage instead of the session erroring out.
//
// # Thread Safety
//
// Safe for concurrent use.
type Retriever struct {
	sessions store.SessionStore
	chunks   store.ChunkStore
	embedder Embedder
	cfg      RetrieverConfig
}

// NewRetriever constructs a Retriever over the given stores and embedder.
func NewRetriever(sessions store.SessionStore, chunks store.ChunkStore, embedder Embedder, cfg RetrieverConfig) *Retriever {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRetrievalLimit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCertaintyThreshold
	}
	return &Retriever{sessions: sessions, chunks: chunks, embedder: embedder, cfg: cfg}
}

// Retrieve embeds the query and returns the closest chunks from ready
// documents in the data space, ordered by similarity descending.
func (r *Retriever) Retrieve(ctx context.Context, dataSpace, query string) ([]datatypes.ScoredChunk, error) {
	ready, err := r.sessions.ReadyDocuments(ctx, dataSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready documents: %w", err)
	}
	if len(ready) == 0 {
		slog.Debug("No ready documents in scope, skipping retrieval",
			"data_space", dataSpace)
		return []datatypes.ScoredChunk{}, nil
	}

	docIds := make([]string, 0, len(ready))
	for _, doc := range ready {
		docIds = append(docIds, doc.DocumentId)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := r.chunks.Search(ctx, dataSpace, docIds, vector, r.cfg.Limit, r.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	slog.Debug("Retrieved evidence chunks",
		"data_space", dataSpace,
		"ready_documents", len(ready),
		"chunks", len(scored))
	return scored, nil
}
