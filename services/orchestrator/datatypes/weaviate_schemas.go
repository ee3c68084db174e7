// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"context"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ChunkClassName is the Weaviate class holding chunk content and vectors.
const ChunkClassName = "DocumentChunk"

// GetDocumentChunkSchema returns the Weaviate class definition for chunks.
//
// Vectorizer is "none": embeddings are computed by the embedding service and
// supplied explicitly, so document and query vectors come from the same model.
func GetDocumentChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ChunkClassName,
		Description: "An overlap-stitched passage of a source document, the unit of retrieval.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk's text content.",
				Tokenization: "word",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "SHA-256 of the content; dedup key within a document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "document_id",
				DataType:        []string{"text"},
				Description:     "Owning document id.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "parent_source",
				DataType:        []string{"text"},
				Description:     "Display name of the source document, for attribution.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "data_space",
				DataType:        []string{"text"},
				Description:     "Logical data space for segmentation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of the chunk within its document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:     "page_hint",
				DataType: []string{"text"},
				Description: "Optional page or heading locator carried from " +
					"the source document.",
				Tokenization: "field",
			},
			{
				Name:            "start_offset",
				DataType:        []string{"int"},
				Description:     "Byte offset of the chunk start in the source text.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "end_offset",
				DataType:        []string{"int"},
				Description:     "Byte offset one past the chunk end.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates the chunk class if it does not already exist.
// Existing classes are left untouched; a conflict response is logged and
// ignored so restarts are idempotent.
func EnsureWeaviateSchema(client *weaviate.Client) {
	ctx := context.Background()

	exists, err := client.Schema().ClassExistenceChecker().
		WithClassName(ChunkClassName).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to check Weaviate schema", "class", ChunkClassName, "error", err)
		return
	}
	if exists {
		slog.Info("Weaviate schema already present", "class", ChunkClassName)
		return
	}

	if err := client.Schema().ClassCreator().
		WithClass(GetDocumentChunkSchema()).
		Do(ctx); err != nil {
		slog.Error("Failed to create Weaviate class", "class", ChunkClassName, "error", err)
		return
	}
	slog.Info("Created Weaviate class", "class", ChunkClassName)
}
