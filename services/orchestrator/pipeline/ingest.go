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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// embedBatchSize is how many chunk texts go to the embedder per call.
	embedBatchSize = 16

	// embedConcurrency caps in-flight embedding calls per document.
	embedConcurrency = 4
)

// =============================================================================
// Ingestor
// =============================================================================

// IngestRequest describes one document upload.
type IngestRequest struct {
	DataSpace   string
	Source      string
	ContentType string
	Data        []byte
}

// Ingestor runs the document ingestion lifecycle.
//
// # Description
//
// Ingestion moves a document through uploading → processing → ready, or to
// error on any failure. The raw bytes are archived to the object store first,
// then the text is chunked, embedded in capped-concurrency batches, and the
// chunks stored with their vectors. The document reaches ready only after
// every chunk's embedding is stored; until then retrieval cannot see it.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent ingests of different documents are
// independent.
type Ingestor struct {
	sessions store.SessionStore
	chunks   store.ChunkStore
	objects  store.ObjectStore
	embedder Embedder
	chunker  ChunkerConfig
}

// NewIngestor constructs an Ingestor.
func NewIngestor(sessions store.SessionStore, chunks store.ChunkStore,
	objects store.ObjectStore, embedder Embedder, chunker ChunkerConfig) *Ingestor {
	return &Ingestor{
		sessions: sessions,
		chunks:   chunks,
		objects:  objects,
		embedder: embedder,
		chunker:  chunker,
	}
}

// Ingest runs the full lifecycle for one document and returns its final
// metadata. On failure the document record survives in error status with the
// failure message, so the caller can inspect and retry.
func (in *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*datatypes.Document, error) {
	now := time.Now().UnixMilli()
	doc := &datatypes.Document{
		DocumentId:  uuid.NewString(),
		DataSpace:   req.DataSpace,
		Source:      req.Source,
		ContentType: req.ContentType,
		SizeBytes:   len(req.Data),
		Status:      datatypes.DocumentUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := in.sessions.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	objectKey := fmt.Sprintf("%s/%s/%s", req.DataSpace, doc.DocumentId, req.Source)
	if err := in.objects.Put(ctx, objectKey, req.Data); err != nil {
		return in.fail(ctx, doc, fmt.Errorf("failed to archive raw document: %w", err))
	}

	doc.Status = datatypes.DocumentProcessing
	doc.UpdatedAt = time.Now().UnixMilli()
	if err := in.sessions.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document record: %w", err)
	}

	pieces := SplitText(string(req.Data), in.chunker)
	if len(pieces) == 0 {
		return in.fail(ctx, doc, fmt.Errorf("document produced no chunks"))
	}

	chunks := make([]datatypes.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = datatypes.Chunk{
			ChunkId:     store.DeterministicChunkId(doc.DocumentId, p.ContentHash),
			DocumentId:  doc.DocumentId,
			DataSpace:   doc.DataSpace,
			Index:       p.Index,
			Content:     p.Content,
			ContentHash: p.ContentHash,
			PageHint:    p.PageHint,
			StartOffset: p.StartOffset,
			EndOffset:   p.EndOffset,
		}
	}

	vectors, err := in.embedAll(ctx, chunks)
	if err != nil {
		return in.fail(ctx, doc, err)
	}

	stored, err := in.chunks.PutChunks(ctx, doc, chunks, vectors)
	if err != nil {
		return in.fail(ctx, doc, fmt.Errorf("failed to store chunks: %w", err))
	}

	doc.Status = datatypes.DocumentReady
	doc.ChunkCount = len(chunks)
	doc.UpdatedAt = time.Now().UnixMilli()
	if err := in.sessions.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to mark document ready: %w", err)
	}

	slog.Info("Document ingested",
		"document_id", doc.DocumentId,
		"data_space", doc.DataSpace,
		"source", doc.Source,
		"chunks", len(chunks),
		"stored", stored)
	return doc, nil
}

// embedAll embeds every chunk in batches with bounded concurrency, returning
// vectors positionally aligned with chunks. Any batch failure aborts the
// whole document: a partially embedded document must never reach ready.
func (in *Ingestor) embedAll(ctx context.Context, chunks []datatypes.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Content
			}
			batch, err := in.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
			}
			for i, v := range batch {
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// DeleteDocument removes a document's chunks and metadata. The archived raw
// bytes stay in the object store.
func (in *Ingestor) DeleteDocument(ctx context.Context, dataSpace, documentId string) error {
	if _, err := in.sessions.GetDocument(ctx, dataSpace, documentId); err != nil {
		return err
	}
	if err := in.chunks.DeleteByDocument(ctx, documentId); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := in.sessions.DeleteDocument(ctx, dataSpace, documentId); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	slog.Info("Document deleted", "document_id", documentId, "data_space", dataSpace)
	return nil
}

// fail parks the document in error status and returns the original error.
func (in *Ingestor) fail(ctx context.Context, doc *datatypes.Document, cause error) (*datatypes.Document, error) {
	doc.Status = datatypes.DocumentError
	doc.ErrorMessage = cause.Error()
	doc.UpdatedAt = time.Now().UnixMilli()
	if err := in.sessions.UpdateDocument(ctx, doc); err != nil {
		slog.Error("Failed to record document error status",
			"document_id", doc.DocumentId, "error", err)
	}
	return doc, cause
}
