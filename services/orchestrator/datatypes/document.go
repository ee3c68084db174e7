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

// DocumentStatus is the processing lifecycle of an ingested document.
type DocumentStatus string

const (
	DocumentUploading  DocumentStatus = "uploading"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentError      DocumentStatus = "error"
)

// Document is source-file metadata for one ingested document. The raw bytes
// are archived through the object store; the chunk vectors live in Weaviate.
// Only documents in ready status are visible to retrieval.
type Document struct {
	DocumentId   string         `json:"document_id"`
	DataSpace    string         `json:"data_space"`
	Source       string         `json:"source"`
	ContentType  string         `json:"content_type,omitempty"`
	SizeBytes    int            `json:"size_bytes"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// Chunk is one overlap-stitched passage of a document, the unit of retrieval.
// Immutable once created; uniqueness is enforced by (document, content hash).
type Chunk struct {
	ChunkId     string `json:"chunk_id"`
	DocumentId  string `json:"document_id"`
	DataSpace   string `json:"data_space"`
	Index       int    `json:"chunk_index"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
	PageHint    string `json:"page_hint,omitempty"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// ScoredChunk is a retrieval result: a chunk hydrated with its source
// document's display name and the normalized similarity score.
type ScoredChunk struct {
	Chunk
	SourceName string  `json:"source_name"`
	Similarity float64 `json:"similarity"`
}
