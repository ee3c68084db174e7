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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

var chunkTracer = otel.Tracer("groundcheck.orchestrator.store.chunks")

// Compile-time interface implementation check.
var _ ChunkStore = (*WeaviateChunkStore)(nil)

// WeaviateChunkStore implements ChunkStore on a Weaviate instance.
//
// # Description
//
// Chunk objects carry their vector explicitly (vectorizer "none") so the
// same embedding model serves documents and queries. Object ids are UUIDs
// derived from SHA-256(documentId + contentHash), which makes inserts
// idempotent: identical content within a document maps to the same object
// id, and Weaviate upserts instead of duplicating.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client pools connections.
type WeaviateChunkStore struct {
	client *weaviate.Client
}

// NewWeaviateChunkStore creates a ChunkStore backed by Weaviate.
// Panics on a nil client (fail-fast for programming errors).
func NewWeaviateChunkStore(client *weaviate.Client) *WeaviateChunkStore {
	if client == nil {
		panic("NewWeaviateChunkStore: client must not be nil")
	}
	return &WeaviateChunkStore{client: client}
}

// DeterministicChunkId derives the stable object id for a chunk from its
// owning document and content hash. Same content, same id.
func DeterministicChunkId(documentId, contentHash string) string {
	sum := sha256.Sum256([]byte(documentId + ":" + contentHash))
	id, _ := uuid.FromBytes(sum[:16])
	return id.String()
}

// PutChunks batch-inserts chunks with their vectors.
func (s *WeaviateChunkStore) PutChunks(ctx context.Context, doc *datatypes.Document,
	chunks []datatypes.Chunk, vectors [][]float32) (int, error) {
	ctx, span := chunkTracer.Start(ctx, "WeaviateChunkStore.PutChunks")
	defer span.End()

	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk count and vector count differ: %d vs %d",
			len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	span.SetAttributes(
		attribute.String("document.id", doc.DocumentId),
		attribute.Int("chunks.count", len(chunks)),
	)

	objects := make([]*models.Object, len(chunks))
	now := time.Now().UnixMilli()
	for i, chunk := range chunks {
		objects[i] = &models.Object{
			Class:  datatypes.ChunkClassName,
			ID:     strfmt.UUID(chunk.ChunkId),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"content":       chunk.Content,
				"content_hash":  chunk.ContentHash,
				"document_id":   doc.DocumentId,
				"parent_source": doc.Source,
				"data_space":    doc.DataSpace,
				"chunk_index":   chunk.Index,
				"page_hint":     chunk.PageHint,
				"start_offset":  chunk.StartOffset,
				"end_offset":    chunk.EndOffset,
				"ingested_at":   now,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to batch-import chunks to Weaviate: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, e := range item.Result.Errors.Error {
				slog.Warn("Weaviate batch item failed",
					"documentId", doc.DocumentId, "error", e.Message)
			}
		}
	}
	if stored < len(chunks) {
		return stored, fmt.Errorf("weaviate stored %d of %d chunks", stored, len(chunks))
	}
	return stored, nil
}

// Search runs nearVector similarity search restricted to a data space and a
// set of document ids. Results below threshold are dropped; certainty is
// used as the normalized similarity score (always in [0,1] regardless of
// the index's distance metric).
func (s *WeaviateChunkStore) Search(ctx context.Context, dataSpace string,
	documentIds []string, vector []float32, limit int, threshold float64) ([]datatypes.ScoredChunk, error) {
	ctx, span := chunkTracer.Start(ctx, "WeaviateChunkStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("data_space", dataSpace),
		attribute.Int("scope.documents", len(documentIds)),
		attribute.Int("limit", limit),
		attribute.Float64("threshold", threshold),
	)

	if len(documentIds) == 0 {
		return []datatypes.ScoredChunk{}, nil
	}

	spaceFilter := filters.Where().
		WithPath([]string{"data_space"}).
		WithOperator(filters.Equal).
		WithValueString(dataSpace)

	docFilter := filters.Where().
		WithPath([]string{"document_id"}).
		WithOperator(filters.ContainsAny).
		WithValueString(documentIds...)

	combined := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{spaceFilter, docFilter})

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithCertainty(float32(threshold))

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "content_hash"},
		{Name: "document_id"},
		{Name: "parent_source"},
		{Name: "data_space"},
		{Name: "chunk_index"},
		{Name: "page_hint"},
		{Name: "start_offset"},
		{Name: "end_offset"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ChunkClassName).
		WithFields(fields...).
		WithWhere(combined).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate chunk search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ChunkQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunk search results: %w", err)
	}

	scored := make([]datatypes.ScoredChunk, 0, len(parsed.Get.DocumentChunk))
	for _, row := range parsed.Get.DocumentChunk {
		// Weaviate's certainty cutoff is applied server-side, but guard here
		// as well so the threshold contract holds even if the query arg is
		// dropped by an older server.
		if row.Additional.Certainty < threshold {
			continue
		}
		scored = append(scored, datatypes.ScoredChunk{
			Chunk: datatypes.Chunk{
				ChunkId:     row.Additional.Id,
				DocumentId:  row.DocumentId,
				DataSpace:   row.DataSpace,
				Index:       row.ChunkIndex,
				Content:     row.Content,
				ContentHash: row.ContentHash,
				PageHint:    row.PageHint,
				StartOffset: row.StartOffset,
				EndOffset:   row.EndOffset,
			},
			SourceName: row.ParentSource,
			Similarity: row.Additional.Certainty,
		})
	}

	span.SetAttributes(attribute.Int("results.count", len(scored)))
	return scored, nil
}

// GetChunk loads one chunk by its object id.
func (s *WeaviateChunkStore) GetChunk(ctx context.Context, chunkId string) (*datatypes.Chunk, error) {
	ctx, span := chunkTracer.Start(ctx, "WeaviateChunkStore.GetChunk")
	defer span.End()

	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(datatypes.ChunkClassName).
		WithID(chunkId).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk %s: %w", chunkId, err)
	}
	if len(objects) == 0 {
		return nil, ErrNotFound
	}

	props, ok := objects[0].Properties.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("chunk %s has unexpected property shape", chunkId)
	}
	chunk := &datatypes.Chunk{
		ChunkId:     chunkId,
		Content:     stringProp(props, "content"),
		ContentHash: stringProp(props, "content_hash"),
		DocumentId:  stringProp(props, "document_id"),
		DataSpace:   stringProp(props, "data_space"),
		PageHint:    stringProp(props, "page_hint"),
		Index:       intProp(props, "chunk_index"),
		StartOffset: intProp(props, "start_offset"),
		EndOffset:   intProp(props, "end_offset"),
	}
	return chunk, nil
}

// DeleteByDocument removes every chunk belonging to a document.
func (s *WeaviateChunkStore) DeleteByDocument(ctx context.Context, documentId string) error {
	ctx, span := chunkTracer.Start(ctx, "WeaviateChunkStore.DeleteByDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentId))

	where := filters.Where().
		WithPath([]string{"document_id"}).
		WithOperator(filters.Equal).
		WithValueString(documentId)

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ChunkClassName).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentId, err)
	}
	if resp != nil && resp.Results != nil {
		slog.Info("Deleted document chunks",
			"documentId", documentId, "matched", resp.Results.Matches)
	}
	return nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func intProp(props map[string]interface{}, key string) int {
	if v, ok := props[key].(float64); ok {
		return int(v)
	}
	return 0
}
